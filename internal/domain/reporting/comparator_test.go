package reporting

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medledger/medledger/internal/domain/billing"
)

func TestCompare_Revenue(t *testing.T) {
	c := Compare(
		PeriodData{Revenue: d("1200"), InvoiceCount: 10, CollectionRate: 90},
		PeriodData{Revenue: d("1000"), InvoiceCount: 10, CollectionRate: 90},
	)
	rev, ok := c.Trend(MetricRevenue)
	if !ok {
		t.Fatal("revenue trend missing")
	}
	if rev.ChangePercent != 20 || rev.Trend != TrendUp {
		t.Errorf("expected +20%% up, got %v %s", rev.ChangePercent, rev.Trend)
	}
	if len(c.Metrics) != 6 {
		t.Errorf("expected six metrics, got %d", len(c.Metrics))
	}
	if c.BestMetric != MetricRevenue {
		t.Errorf("expected revenue as best metric, got %s", c.BestMetric)
	}
	// Every other metric is flat at 0%; the first of them wins the tie.
	if c.WorstMetric != MetricInvoices {
		t.Errorf("expected invoices as worst metric, got %s", c.WorstMetric)
	}
}

func TestCompare_Recommendations(t *testing.T) {
	c := Compare(
		PeriodData{Revenue: d("700"), InvoiceCount: 10, AppointmentCount: 5, CollectionRate: 60},
		PeriodData{Revenue: d("1000"), InvoiceCount: 10, AppointmentCount: 10, CollectionRate: 85},
	)
	joined := strings.Join(c.Recommendations, "\n")
	for _, want := range []string{"pricing", "collections process", "payment delays", "outreach"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected a recommendation mentioning %q, got %v", want, c.Recommendations)
		}
	}
	if strings.Contains(joined, "growing") {
		t.Error("growth message should not fire when revenue is down")
	}
	if c.WorstMetric != MetricAppointments {
		t.Errorf("expected appointments as worst metric, got %s", c.WorstMetric)
	}
}

func TestCompare_NoRecommendationsWhenFlat(t *testing.T) {
	p := PeriodData{Revenue: d("1000"), InvoiceCount: 10, CollectionRate: 95}
	if c := Compare(p, p); len(c.Recommendations) != 0 {
		t.Errorf("expected no recommendations, got %v", c.Recommendations)
	}
}

func TestRecommendationRules_UniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range recommendationRules {
		if seen[r.ID] {
			t.Errorf("duplicate rule id %s", r.ID)
		}
		seen[r.ID] = true
		if r.Message == "" || r.Applies == nil {
			t.Errorf("rule %s is incomplete", r.ID)
		}
	}
}

func TestPreviousPeriod(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 23, 59, 59, 999999999, time.UTC)
	ps, pe := PreviousPeriod(start, end)

	if !pe.Equal(start.Add(-time.Nanosecond)) {
		t.Errorf("previous end should be the instant before start, got %s", pe)
	}
	if pe.Sub(ps) != end.Sub(start) {
		t.Errorf("durations differ: %s vs %s", pe.Sub(ps), end.Sub(start))
	}
	if want := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC); !ps.Equal(want) {
		t.Errorf("expected previous start %s, got %s", want, ps)
	}
}

func TestSummarize(t *testing.T) {
	shared := uuid.New()
	a := inv(billing.StatusPaid, "100", "100", daysAgo(1))
	a.PatientID = shared
	b := inv(billing.StatusPartial, "100", "50", daysAgo(1))
	c := inv(billing.StatusPending, "100", "0", daysAgo(1))
	appts := []*Appointment{
		appt(shared, uuid.New(), AppointmentCompleted, daysAgo(1)),
		appt(uuid.New(), uuid.New(), AppointmentCompleted, daysAgo(1)),
		appt(uuid.New(), uuid.New(), AppointmentNoShow, daysAgo(1)),
	}

	p := Summarize([]*billing.Invoice{a, b, c}, appts)
	if !p.Revenue.Equal(d("150")) {
		t.Errorf("expected revenue 150, got %s", p.Revenue)
	}
	if p.PatientCount != 5 {
		t.Errorf("expected 5 distinct patients, got %d", p.PatientCount)
	}
	if p.CollectionRate != 33.33 {
		t.Errorf("expected collection 33.33, got %v", p.CollectionRate)
	}
	if !p.AvgRevenuePerAppointment.Equal(d("50")) {
		t.Errorf("expected 50 per appointment, got %s", p.AvgRevenuePerAppointment)
	}
}
