package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MutateFunc applies a ledger operation to a freshly loaded invoice. ctx
// carries the repository's transaction so collaborators (the audit sink) can
// write inside it. Returning an error aborts the whole mutation.
type MutateFunc func(ctx context.Context, inv *Invoice) (*Effects, error)

type InvoiceRepository interface {
	// Create persists the invoice and its line items atomically.
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, q InvoiceQuery) ([]*Invoice, int, error)
	LineItems(ctx context.Context, invoiceID uuid.UUID) ([]*LineItem, error)
	// Mutate is the only write path for amounts and status. It is an atomic
	// read-modify-write scoped to one invoice; implementations either lock the
	// row or fail with ErrConcurrentUpdate when the version moved.
	Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Invoice, error)
}

type PaymentRepository interface {
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error)
}

type ExonerationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Exoneration, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Exoneration, error)
	// MarkPrinted sets is_printed and keeps an existing printed_at.
	MarkPrinted(ctx context.Context, id uuid.UUID, at time.Time) (*Exoneration, error)
}
