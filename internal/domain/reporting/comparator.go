package reporting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/billing"
	"github.com/medledger/medledger/pkg/money"
)

// PeriodData is the pre-aggregated summary of one period.
type PeriodData struct {
	Revenue                  decimal.Decimal `json:"revenue"`
	InvoiceCount             int             `json:"invoiceCount"`
	PatientCount             int             `json:"patientCount"`
	AppointmentCount         int             `json:"appointmentCount"`
	CollectionRate           float64         `json:"collectionRate"`
	AvgRevenuePerAppointment decimal.Decimal `json:"avgRevenuePerAppointment"`
}

// Metric names, in comparison order.
const (
	MetricRevenue           = "revenue"
	MetricInvoices          = "invoices"
	MetricPatients          = "patients"
	MetricAppointments      = "appointments"
	MetricCollectionRate    = "collectionRate"
	MetricAvgRevenuePerAppt = "avgRevenuePerAppointment"
)

type MetricTrend struct {
	Metric string `json:"metric"`
	TrendData
}

type Comparison struct {
	Current         PeriodData    `json:"current"`
	Previous        PeriodData    `json:"previous"`
	Metrics         []MetricTrend `json:"metrics"`
	BestMetric      string        `json:"bestMetric"`
	WorstMetric     string        `json:"worstMetric"`
	Recommendations []string      `json:"recommendations"`
}

// Trend returns the trend recorded for metric.
func (c Comparison) Trend(metric string) (TrendData, bool) {
	for _, m := range c.Metrics {
		if m.Metric == metric {
			return m.TrendData, true
		}
	}
	return TrendData{}, false
}

// CollectionRate is the share of invoices that reached PAID.
func CollectionRate(invoices []*billing.Invoice) float64 {
	paid := 0
	for _, inv := range invoices {
		if inv.Status == billing.StatusPaid {
			paid++
		}
	}
	return money.RoundRate(money.Ratio(float64(paid), float64(len(invoices))))
}

// Summarize reduces one period's invoices and appointments to PeriodData.
// Patients are the distinct ids seen on either.
func Summarize(invoices []*billing.Invoice, appointments []*Appointment) PeriodData {
	patients := make(map[uuid.UUID]struct{})
	for _, inv := range invoices {
		patients[inv.PatientID] = struct{}{}
	}
	for _, a := range appointments {
		patients[a.PatientID] = struct{}{}
	}

	revenue := money.Round(RealizedRevenue(invoices))
	avg := decimal.Zero
	if len(appointments) > 0 {
		avg = money.Round(revenue.Div(decimal.NewFromInt(int64(len(appointments)))))
	}
	return PeriodData{
		Revenue:                  revenue,
		InvoiceCount:             len(invoices),
		PatientCount:             len(patients),
		AppointmentCount:         len(appointments),
		CollectionRate:           CollectionRate(invoices),
		AvgRevenuePerAppointment: avg,
	}
}

// Compare trends the six metrics of current against previous, picks the
// best and worst by change percent (first wins on ties) and applies the
// recommendation rules.
func Compare(current, previous PeriodData) Comparison {
	c := Comparison{
		Current:  current,
		Previous: previous,
		Metrics: []MetricTrend{
			{MetricRevenue, GrowthRate(money.Float(current.Revenue), money.Float(previous.Revenue))},
			{MetricInvoices, GrowthRate(float64(current.InvoiceCount), float64(previous.InvoiceCount))},
			{MetricPatients, GrowthRate(float64(current.PatientCount), float64(previous.PatientCount))},
			{MetricAppointments, GrowthRate(float64(current.AppointmentCount), float64(previous.AppointmentCount))},
			{MetricCollectionRate, GrowthRate(current.CollectionRate, previous.CollectionRate)},
			{MetricAvgRevenuePerAppt, GrowthRate(money.Float(current.AvgRevenuePerAppointment), money.Float(previous.AvgRevenuePerAppointment))},
		},
	}

	best, worst := 0, 0
	for i, m := range c.Metrics {
		if m.ChangePercent > c.Metrics[best].ChangePercent {
			best = i
		}
		if m.ChangePercent < c.Metrics[worst].ChangePercent {
			worst = i
		}
	}
	c.BestMetric = c.Metrics[best].Metric
	c.WorstMetric = c.Metrics[worst].Metric
	c.Recommendations = Recommend(c)
	return c
}

// PreviousPeriod returns the window of the same length that ends the instant
// before start.
func PreviousPeriod(start, end time.Time) (time.Time, time.Time) {
	prevEnd := start.Add(-time.Nanosecond)
	return prevEnd.Add(-end.Sub(start)), prevEnd
}
