package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/coverage"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusPartial    Status = "PARTIAL"
	StatusPaid       Status = "PAID"
	StatusCancelled  Status = "CANCELLED"
	StatusExonerated Status = "EXONERATED"
)

var AllStatuses = []Status{StatusPending, StatusPartial, StatusPaid, StatusCancelled, StatusExonerated}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid, StatusCancelled, StatusExonerated:
		return true
	}
	return false
}

// Terminal reports whether no further ledger operation is accepted.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusExonerated
}

// Open reports whether the invoice still carries a collectible balance.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusPartial
}

// Invoice maps to the invoice table. Amount and status fields are only ever
// changed by RecordPayment, Cancel and Exonerate.
type Invoice struct {
	ID                   uuid.UUID             `db:"id" json:"id"`
	InvoiceNumber        string                `db:"invoice_number" json:"invoice_number"`
	PatientID            uuid.UUID             `db:"patient_id" json:"patient_id"`
	InsuranceID          *uuid.UUID            `db:"insurance_id" json:"insurance_id,omitempty"`
	AppointmentID        *uuid.UUID            `db:"appointment_id" json:"appointment_id,omitempty"`
	TotalAmount          decimal.Decimal       `db:"total_amount" json:"total_amount"`
	PaidAmount           decimal.Decimal       `db:"paid_amount" json:"paid_amount"`
	PendingAmount        decimal.Decimal       `db:"pending_amount" json:"pending_amount"`
	Status               Status                `db:"status" json:"status"`
	DueDate              *time.Time            `db:"due_date" json:"due_date,omitempty"`
	InsuranceCalculation *coverage.Calculation `db:"-" json:"insurance_calculation,omitempty"`
	Notes                string                `db:"notes" json:"notes,omitempty"`
	Version              int                   `db:"version" json:"version"`
	CreatedAt            time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time             `db:"updated_at" json:"updated_at"`

	LineItems []*LineItem `db:"-" json:"line_items,omitempty"`
}

// LineItem maps to invoice_line_item. InsuranceCovers and PatientPays are
// the coverage split at billing time.
type LineItem struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	InvoiceID       uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	ServiceID       uuid.UUID       `db:"service_id" json:"service_id"`
	ServiceName     string          `db:"service_name" json:"service_name"`
	Quantity        int             `db:"quantity" json:"quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice      decimal.Decimal `db:"total_price" json:"total_price"`
	InsuranceCovers decimal.Decimal `db:"insurance_covers" json:"insurance_covers"`
	PatientPays     decimal.Decimal `db:"patient_pays" json:"patient_pays"`
}

// Payment is an immutable installment record.
type Payment struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	InvoiceID  uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Method     string          `db:"method" json:"method"`
	PaidAt     time.Time       `db:"paid_at" json:"paid_at"`
	Notes      string          `db:"notes" json:"notes,omitempty"`
	RecordedBy string          `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Exoneration records forgiveness of part or all of an invoice's pending
// amount. OriginalAmount is the pending amount just before it applied.
type Exoneration struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	InvoiceID        uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	OriginalAmount   decimal.Decimal `db:"original_amount" json:"original_amount"`
	ExoneratedAmount decimal.Decimal `db:"exonerated_amount" json:"exonerated_amount"`
	Reason           string          `db:"reason" json:"reason"`
	AuthorizedBy     string          `db:"authorized_by" json:"authorized_by"`
	IsPrinted        bool            `db:"is_printed" json:"is_printed"`
	PrintedAt        *time.Time      `db:"printed_at" json:"printed_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// Snapshot is the amount-and-status view emitted to the audit trail.
type Snapshot struct {
	Status        Status          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	Version       int             `json:"version"`
}

func (inv *Invoice) Snapshot() Snapshot {
	return Snapshot{
		Status:        inv.Status,
		TotalAmount:   inv.TotalAmount,
		PaidAmount:    inv.PaidAmount,
		PendingAmount: inv.PendingAmount,
		Version:       inv.Version,
	}
}

// Effects are the records a ledger operation appends next to the updated
// invoice row.
type Effects struct {
	Payment     *Payment
	Exoneration *Exoneration
}
