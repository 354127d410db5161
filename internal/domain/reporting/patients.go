package reporting

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/billing"
	"github.com/medledger/medledger/pkg/money"
)

type PatientMetrics struct {
	TotalPatients       int             `json:"totalPatients"`
	NewPatients         int             `json:"newPatients"`
	ReturningPatients   int             `json:"returningPatients"`
	RetentionRate       float64         `json:"retentionRate"`
	TotalAppointments   int             `json:"totalAppointments"`
	AvgVisitsPerPatient float64         `json:"avgVisitsPerPatient"`
	TotalRevenue        decimal.Decimal `json:"totalRevenue"`
	LTV                 decimal.Decimal `json:"ltv"`
	NoShowRate          float64         `json:"noShowRate"`
	ConversionRate      float64         `json:"conversionRate"`
}

// Realized is the revenue an invoice has actually produced: the full total
// once PAID, what has been paid so far while PARTIAL, nothing otherwise.
func Realized(inv *billing.Invoice) decimal.Decimal {
	switch inv.Status {
	case billing.StatusPaid:
		return inv.TotalAmount
	case billing.StatusPartial:
		return inv.PaidAmount
	}
	return decimal.Zero
}

// RealizedRevenue sums Realized over invoices.
func RealizedRevenue(invoices []*billing.Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(Realized(inv))
	}
	return total
}

// CalculatePatientMetrics derives visit, retention and value metrics for
// the window's patients. appointments and invoices are the window's; lifetime
// is every appointment recorded up to the window end, and a patient is new
// when exactly one of those is theirs.
func CalculatePatientMetrics(patients []*Patient, appointments, lifetime []*Appointment, invoices []*billing.Invoice) PatientMetrics {
	visits := make(map[uuid.UUID]int, len(patients))
	for _, a := range lifetime {
		visits[a.PatientID]++
	}
	noShows := 0
	for _, a := range appointments {
		if a.Status == AppointmentNoShow {
			noShows++
		}
	}

	m := PatientMetrics{
		TotalPatients:     len(patients),
		TotalAppointments: len(appointments),
	}
	for _, p := range patients {
		if visits[p.ID] == 1 {
			m.NewPatients++
		}
	}
	m.ReturningPatients = m.TotalPatients - m.NewPatients

	total := float64(m.TotalPatients)
	m.RetentionRate = money.RoundRate(money.Ratio(float64(m.ReturningPatients), total))
	if m.TotalPatients > 0 {
		m.AvgVisitsPerPatient = money.RoundRate(float64(m.TotalAppointments) / total)
	}
	m.NoShowRate = money.RoundRate(money.Ratio(float64(noShows), float64(m.TotalAppointments)))

	m.TotalRevenue = money.Round(RealizedRevenue(invoices))
	m.LTV = decimal.Zero
	if m.TotalPatients > 0 {
		m.LTV = money.Round(m.TotalRevenue.Div(decimal.NewFromInt(int64(m.TotalPatients))))
	}

	m.ConversionRate = conversionRate(patients, visits)
	return m
}

// conversionRate takes the first-timers (exactly one appointment) and
// reports the share of them that also have more than one appointment. Both
// conditions are read from the same counts, so the result is always 0.
// TODO: switch to "first visit before the window, another visit inside it"
// once the clinic confirms that definition.
func conversionRate(patients []*Patient, visits map[uuid.UUID]int) float64 {
	firstTimers, converted := 0, 0
	for _, p := range patients {
		n := visits[p.ID]
		if n != 1 {
			continue
		}
		firstTimers++
		if n > 1 {
			converted++
		}
	}
	return money.RoundRate(money.Ratio(float64(converted), float64(firstTimers)))
}
