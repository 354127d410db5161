package reporting

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/billing"
	"github.com/medledger/medledger/internal/platform/clock"
	"github.com/medledger/medledger/pkg/money"
)

const topServicesLimit = 5

// Aggregator composes the calculators into a Report. It does no I/O.
type Aggregator struct {
	clock    clock.Clock
	location *time.Location
	logger   zerolog.Logger
}

// NewAggregator builds an aggregator. Monthly buckets are cut in loc; nil
// means UTC.
func NewAggregator(c clock.Clock, loc *time.Location, logger zerolog.Logger) *Aggregator {
	if c == nil {
		c = clock.System()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{clock: c, location: loc, logger: logger}
}

func (a *Aggregator) Aggregate(in Input) *Report {
	now := a.clock.Now()
	var dq DataQuality

	history := a.clean(in.History, &dq)
	window := a.clean(in.Window, &dq)
	previous := a.clean(in.Previous, &dq)

	report := &Report{
		PeriodInfo: PeriodInfo{
			Start:         in.Start,
			End:           in.End,
			PreviousStart: in.PreviousStart,
			PreviousEnd:   in.PreviousEnd,
			Days:          int(in.End.Sub(in.Start)/day) + 1,
			GeneratedAt:   now,
		},
		Global:         StatusBreakdown(history.Invoices),
		Period:         StatusBreakdown(window.Invoices),
		AgingReport:    BuildAging(createdThrough(history.Invoices, in.End), now),
		PatientMetrics: CalculatePatientMetrics(window.Patients, window.Appointments, history.Appointments, window.Invoices),
		Comparison: Compare(
			Summarize(window.Invoices, window.Appointments),
			Summarize(previous.Invoices, previous.Appointments),
		),
		Doctors:     DoctorBreakdown(window.Appointments),
		DataQuality: dq,
	}

	exGroups, exTotal := ExonerationBreakdown(window.Exonerations)
	report.Financial = Financial{
		MonthlyRevenue:     a.MonthlyRevenue(window.Invoices, in.Start, in.End),
		TopServices:        TopServices(window.Invoices, topServicesLimit),
		Exonerations:       exGroups,
		TotalExonerated:    exTotal,
		CollectionRate:     CollectionRate(window.Invoices),
		DelinquencyRate:    DelinquencyRate(window.Invoices),
		AverageDaysOverdue: AverageDaysOverdue(window.Invoices, now),
	}

	if dq.Excluded() > 0 {
		a.logger.Warn().
			Int("excluded_invoices", dq.ExcludedInvoices).
			Int("excluded_appointments", dq.ExcludedAppointments).
			Strs("ids", dq.ExcludedIDs).
			Msg("malformed records excluded from report")
	}
	return report
}

// clean drops records that cannot be interpreted and counts them in dq. The
// same record can appear in several snapshots; it is counted once.
// createdThrough keeps invoices created at or before end.
func createdThrough(invoices []*billing.Invoice, end time.Time) []*billing.Invoice {
	out := make([]*billing.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if !inv.CreatedAt.After(end) {
			out = append(out, inv)
		}
	}
	return out
}

func (a *Aggregator) clean(s Snapshot, dq *DataQuality) Snapshot {
	out := Snapshot{Exonerations: s.Exonerations, Patients: s.Patients}
	for _, inv := range s.Invoices {
		if err := validateInvoice(inv); err != nil {
			dq.exclude(&dq.ExcludedInvoices, inv.ID.String())
			a.logger.Debug().Err(err).Str("invoice_id", inv.ID.String()).Msg("invoice excluded")
			continue
		}
		out.Invoices = append(out.Invoices, inv)
	}
	for _, ap := range s.Appointments {
		if !ap.Status.Valid() || ap.PatientID == uuid.Nil {
			dq.exclude(&dq.ExcludedAppointments, ap.ID.String())
			continue
		}
		out.Appointments = append(out.Appointments, ap)
	}
	return out
}

func (dq *DataQuality) exclude(counter *int, id string) {
	for _, seen := range dq.ExcludedIDs {
		if seen == id {
			return
		}
	}
	*counter++
	dq.ExcludedIDs = append(dq.ExcludedIDs, id)
}

func validateInvoice(inv *billing.Invoice) error {
	switch {
	case !inv.Status.Valid():
		return fmt.Errorf("unknown status %q", inv.Status)
	case inv.PatientID == uuid.Nil:
		return errors.New("missing patient")
	case inv.TotalAmount.IsNegative() || inv.PaidAmount.IsNegative() || inv.PendingAmount.IsNegative():
		return errors.New("negative amount")
	case !inv.Status.Terminal() || inv.Status == billing.StatusPaid:
		if !inv.Balanced() {
			return fmt.Errorf("paid %s + pending %s != total %s", inv.PaidAmount, inv.PendingAmount, inv.TotalAmount)
		}
	}
	for _, li := range inv.LineItems {
		if li.ServiceID == uuid.Nil || li.Quantity <= 0 {
			return fmt.Errorf("line item %s references no service", li.ID)
		}
	}
	return nil
}

// StatusBreakdown counts invoices and sums totals per status, in the fixed
// status order.
func StatusBreakdown(invoices []*billing.Invoice) StatusStats {
	byStatus := make(map[billing.Status]*StatusCount, len(billing.AllStatuses))
	for _, s := range billing.AllStatuses {
		byStatus[s] = &StatusCount{Status: s, Amount: decimal.Zero}
	}
	st := StatusStats{TotalAmount: decimal.Zero, Revenue: decimal.Zero, Pending: decimal.Zero}
	for _, inv := range invoices {
		sc := byStatus[inv.Status]
		sc.Count++
		sc.Amount = sc.Amount.Add(inv.TotalAmount)
		st.TotalInvoices++
		st.TotalAmount = st.TotalAmount.Add(inv.TotalAmount)
		st.Revenue = st.Revenue.Add(Realized(inv))
		if inv.Status.Open() {
			st.Pending = st.Pending.Add(inv.PendingAmount)
		}
	}
	for _, s := range billing.AllStatuses {
		sc := byStatus[s]
		sc.Amount = money.Round(sc.Amount)
		st.ByStatus = append(st.ByStatus, *sc)
	}
	st.TotalAmount = money.Round(st.TotalAmount)
	st.Revenue = money.Round(st.Revenue)
	st.Pending = money.Round(st.Pending)
	return st
}

// MonthlyRevenue emits one bucket per calendar month touched by [start, end],
// including months with no invoices.
func (a *Aggregator) MonthlyRevenue(invoices []*billing.Invoice, start, end time.Time) []MonthlyRevenue {
	if end.Before(start) {
		return []MonthlyRevenue{}
	}
	s, e := start.In(a.location), end.In(a.location)
	first := time.Date(s.Year(), s.Month(), 1, 0, 0, 0, 0, a.location)
	last := time.Date(e.Year(), e.Month(), 1, 0, 0, 0, 0, a.location)

	var out []MonthlyRevenue
	index := make(map[string]int)
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		key := m.Format("2006-01")
		index[key] = len(out)
		out = append(out, MonthlyRevenue{Month: key, Revenue: decimal.Zero})
	}
	for _, inv := range invoices {
		i, ok := index[inv.CreatedAt.In(a.location).Format("2006-01")]
		if !ok {
			continue
		}
		out[i].Revenue = out[i].Revenue.Add(Realized(inv))
		out[i].InvoiceCount++
	}
	for i := range out {
		out[i].Revenue = money.Round(out[i].Revenue)
	}
	return out
}

// TopServices aggregates line items of PAID invoices per service and keeps
// the limit highest by revenue. Ties keep first-seen order.
func TopServices(invoices []*billing.Invoice, limit int) []ServiceStats {
	var stats []ServiceStats
	index := make(map[uuid.UUID]int)
	for _, inv := range invoices {
		if inv.Status != billing.StatusPaid {
			continue
		}
		for _, li := range inv.LineItems {
			i, ok := index[li.ServiceID]
			if !ok {
				i = len(stats)
				index[li.ServiceID] = i
				stats = append(stats, ServiceStats{ServiceID: li.ServiceID, ServiceName: li.ServiceName, Revenue: decimal.Zero})
			}
			stats[i].Quantity += li.Quantity
			stats[i].Revenue = stats[i].Revenue.Add(li.TotalPrice)
		}
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Revenue.GreaterThan(stats[j].Revenue) })
	if len(stats) > limit {
		stats = stats[:limit]
	}
	for i := range stats {
		stats[i].Revenue = money.Round(stats[i].Revenue)
	}
	if stats == nil {
		stats = []ServiceStats{}
	}
	return stats
}

// DoctorBreakdown groups appointments per doctor, busiest first.
func DoctorBreakdown(appointments []*Appointment) []DoctorStats {
	var stats []DoctorStats
	index := make(map[uuid.UUID]int)
	patients := make(map[uuid.UUID]map[uuid.UUID]struct{})
	for _, ap := range appointments {
		i, ok := index[ap.DoctorID]
		if !ok {
			i = len(stats)
			index[ap.DoctorID] = i
			patients[ap.DoctorID] = make(map[uuid.UUID]struct{})
			stats = append(stats, DoctorStats{DoctorID: ap.DoctorID, DoctorName: ap.DoctorName})
		}
		stats[i].Appointments++
		if ap.Status == AppointmentCompleted {
			stats[i].CompletedAppointments++
		}
		patients[ap.DoctorID][ap.PatientID] = struct{}{}
	}
	for i := range stats {
		stats[i].UniquePatients = len(patients[stats[i].DoctorID])
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Appointments > stats[j].Appointments })
	if stats == nil {
		stats = []DoctorStats{}
	}
	return stats
}

// ExonerationBreakdown groups exonerations by reason, largest amount first,
// and returns the overall exonerated total.
func ExonerationBreakdown(exonerations []*billing.Exoneration) ([]ExonerationGroup, decimal.Decimal) {
	groups := []ExonerationGroup{}
	index := make(map[string]int)
	total := decimal.Zero
	for _, ex := range exonerations {
		reason := strings.TrimSpace(ex.Reason)
		if reason == "" {
			reason = "unspecified"
		}
		i, ok := index[reason]
		if !ok {
			i = len(groups)
			index[reason] = i
			groups = append(groups, ExonerationGroup{Reason: reason, Amount: decimal.Zero})
		}
		groups[i].Count++
		groups[i].Amount = groups[i].Amount.Add(ex.ExoneratedAmount)
		total = total.Add(ex.ExoneratedAmount)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Amount.GreaterThan(groups[j].Amount) })
	for i := range groups {
		groups[i].Amount = money.Round(groups[i].Amount)
	}
	return groups, money.Round(total)
}

// DelinquencyRate is the share of invoices still PENDING or PARTIAL.
func DelinquencyRate(invoices []*billing.Invoice) float64 {
	open := 0
	for _, inv := range invoices {
		if inv.Status.Open() {
			open++
		}
	}
	return money.RoundRate(money.Ratio(float64(open), float64(len(invoices))))
}

// AverageDaysOverdue averages the whole days overdue of open invoices past
// their due date, or past their creation when no due date is set. Invoices
// not yet overdue do not count.
func AverageDaysOverdue(invoices []*billing.Invoice, now time.Time) float64 {
	overdue, days := 0, 0
	for _, inv := range invoices {
		if !inv.Status.Open() {
			continue
		}
		ref := inv.CreatedAt
		if inv.DueDate != nil {
			ref = *inv.DueDate
		}
		if !now.After(ref) {
			continue
		}
		overdue++
		days += AgeDays(ref, now)
	}
	if overdue == 0 {
		return 0
	}
	return money.RoundRate(float64(days) / float64(overdue))
}
