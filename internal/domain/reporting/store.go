package reporting

import (
	"context"
	"strings"
	"time"

	"github.com/medledger/medledger/internal/domain/billing"
)

// Range is a half-open time window [From, To). A nil bound is open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && !t.Before(*r.To) {
		return false
	}
	return true
}

// Where renders the range over col as SQL predicates with ? placeholders,
// or "" when the range is unbounded.
func (r Range) Where(col string) (string, []interface{}) {
	var preds []string
	var args []interface{}
	if r.From != nil {
		preds = append(preds, col+" >= ?")
		args = append(args, *r.From)
	}
	if r.To != nil {
		preds = append(preds, col+" < ?")
		args = append(args, *r.To)
	}
	return strings.Join(preds, " AND "), args
}

// Bounded reports whether either end of the range is set.
func (r Range) Bounded() bool { return r.From != nil || r.To != nil }

// Store fetches the records a report is built from.
type Store interface {
	// Invoices returns every invoice matching q with its line items loaded.
	Invoices(ctx context.Context, q billing.InvoiceQuery) ([]*billing.Invoice, error)
	// Exonerations returns exonerations created within r.
	Exonerations(ctx context.Context, r Range) ([]*billing.Exoneration, error)
	// Appointments returns appointments scheduled within r.
	Appointments(ctx context.Context, r Range) ([]*Appointment, error)
	// Patients returns patients with an appointment or invoice within r.
	// An unbounded range returns every patient.
	Patients(ctx context.Context, r Range) ([]*Patient, error)
}
