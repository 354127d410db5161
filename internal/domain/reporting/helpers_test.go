package reporting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/billing"
)

var now = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// inv builds an invoice that satisfies the ledger invariants for its status.
func inv(status billing.Status, total, paid string, createdAt time.Time) *billing.Invoice {
	t := d(total)
	p := d(paid)
	return &billing.Invoice{
		ID:            uuid.New(),
		PatientID:     uuid.New(),
		Status:        status,
		TotalAmount:   t,
		PaidAmount:    p,
		PendingAmount: t.Sub(p),
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func daysAgo(n int) time.Time { return now.Add(-time.Duration(n) * 24 * time.Hour) }

func line(svc uuid.UUID, name string, qty int, total string) *billing.LineItem {
	return &billing.LineItem{
		ID:          uuid.New(),
		ServiceID:   svc,
		ServiceName: name,
		Quantity:    qty,
		TotalPrice:  d(total),
		PatientPays: d(total),
	}
}

func appt(patient, doctor uuid.UUID, status AppointmentStatus, at time.Time) *Appointment {
	return &Appointment{
		ID:          uuid.New(),
		PatientID:   patient,
		DoctorID:    doctor,
		DoctorName:  "Dr " + doctor.String()[:4],
		Status:      status,
		ScheduledAt: at,
	}
}
