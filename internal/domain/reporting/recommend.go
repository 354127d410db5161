package reporting

// lowCollectionRate is the collection rate under which the collections
// process is flagged.
const lowCollectionRate = 80.0

type recommendationRule struct {
	ID      string
	Applies func(c Comparison) bool
	Message string
}

func trendIs(metric string, t Trend) func(Comparison) bool {
	return func(c Comparison) bool {
		td, ok := c.Trend(metric)
		return ok && td.Trend == t
	}
}

var recommendationRules = []recommendationRule{
	{
		ID:      "revenue-down",
		Applies: trendIs(MetricRevenue, TrendDown),
		Message: "Revenue is down against the previous period: review service pricing and coverage agreements.",
	},
	{
		ID: "low-collection",
		Applies: func(c Comparison) bool {
			return c.Current.InvoiceCount > 0 && c.Current.CollectionRate < lowCollectionRate
		},
		Message: "Collection rate is below 80%: review the collections process and follow up on open invoices.",
	},
	{
		ID:      "collection-down",
		Applies: trendIs(MetricCollectionRate, TrendDown),
		Message: "Collection rate is falling: check for payment delays and overdue balances.",
	},
	{
		ID:      "appointments-down",
		Applies: trendIs(MetricAppointments, TrendDown),
		Message: "Fewer appointments than the previous period: consider reminders and patient outreach.",
	},
	{
		ID:      "patients-down",
		Applies: trendIs(MetricPatients, TrendDown),
		Message: "Patient count is shrinking: look at retention and referral channels.",
	},
	{
		ID:      "avg-revenue-down",
		Applies: trendIs(MetricAvgRevenuePerAppt, TrendDown),
		Message: "Revenue per appointment dropped: check discounts, exonerations and service mix.",
	},
	{
		ID:      "revenue-up",
		Applies: trendIs(MetricRevenue, TrendUp),
		Message: "Revenue is growing: keep current pricing and capacity planning in step.",
	},
}

// Recommend returns the message of every rule that applies, in table order.
func Recommend(c Comparison) []string {
	out := []string{}
	for _, r := range recommendationRules {
		if r.Applies(c) {
			out = append(out, r.Message)
		}
	}
	return out
}
