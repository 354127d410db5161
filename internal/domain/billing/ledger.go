package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/coverage"
	"github.com/medledger/medledger/pkg/money"
)

// NewInvoice builds a PENDING invoice from a coverage calculation. The total
// is the sum of line totals and never changes afterwards.
func NewInvoice(number string, patientID uuid.UUID, calc *coverage.Calculation, createdAt time.Time) (*Invoice, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInvoice)
	}
	if calc == nil || len(calc.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", ErrInvalidInvoice)
	}

	inv := &Invoice{
		ID:                   uuid.New(),
		InvoiceNumber:        number,
		PatientID:            patientID,
		InsuranceID:          calc.InsuranceID,
		Status:               StatusPending,
		PaidAmount:           decimal.Zero,
		InsuranceCalculation: calc,
		Version:              1,
		CreatedAt:            createdAt,
		UpdatedAt:            createdAt,
	}

	total := decimal.Zero
	for _, l := range calc.Lines {
		if l.Quantity <= 0 || l.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %s has invalid quantity or price", ErrInvalidInvoice, l.ServiceName)
		}
		item := &LineItem{
			ID:              uuid.New(),
			InvoiceID:       inv.ID,
			ServiceID:       l.ServiceID,
			ServiceName:     l.ServiceName,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			TotalPrice:      l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
			InsuranceCovers: l.InsuranceCovers,
			PatientPays:     l.PatientPays,
		}
		total = total.Add(item.TotalPrice)
		inv.LineItems = append(inv.LineItems, item)
	}
	inv.TotalAmount = total
	inv.PendingAmount = total
	return inv, nil
}

// InvoiceNumber formats INV-YYYYMMDD-XXXXXXXX from the creation date and the
// first eight hex digits of id.
func InvoiceNumber(id uuid.UUID, at time.Time) string {
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), strings.ToUpper(id.String()[:8]))
}

type PaymentInput struct {
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Notes      string          `json:"notes,omitempty"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
	RecordedBy string          `json:"-"`
}

type ExonerationInput struct {
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
	AuthorizedBy string          `json:"authorized_by,omitempty"`
}

func (inv *Invoice) requireOpen(op string) error {
	if inv.Status.Terminal() {
		return fmt.Errorf("%w: cannot %s a %s invoice", ErrInvalidStateTransition, op, inv.Status)
	}
	return nil
}

// RecordPayment applies one installment. 0 < amount <= pending is required;
// the invoice becomes PAID when nothing is left, PARTIAL otherwise.
func (inv *Invoice) RecordPayment(in PaymentInput, now time.Time) (*Payment, error) {
	if err := inv.requireOpen("pay"); err != nil {
		return nil, err
	}
	amount := in.Amount
	if !amount.IsPositive() || !money.IsCents(amount) {
		return nil, fmt.Errorf("%w: %s must be a positive amount in cents", ErrInvalidPaymentAmount, amount)
	}
	if amount.GreaterThan(inv.PendingAmount) {
		return nil, fmt.Errorf("%w: %s exceeds pending %s", ErrInvalidPaymentAmount, amount, inv.PendingAmount)
	}

	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.PendingAmount = inv.PendingAmount.Sub(amount)
	if inv.PendingAmount.IsZero() {
		inv.Status = StatusPaid
	} else {
		inv.Status = StatusPartial
	}
	inv.UpdatedAt = now

	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = "UNSPECIFIED"
	}
	paidAt := now
	if in.PaidAt != nil && !in.PaidAt.IsZero() {
		paidAt = *in.PaidAt
	}
	return &Payment{
		ID:         uuid.New(),
		InvoiceID:  inv.ID,
		Amount:     amount,
		Method:     method,
		PaidAt:     paidAt,
		Notes:      in.Notes,
		RecordedBy: in.RecordedBy,
		CreatedAt:  now,
	}, nil
}

// Cancel closes a PENDING or PARTIAL invoice. Amounts are frozen as they are.
func (inv *Invoice) Cancel(now time.Time) error {
	if err := inv.requireOpen("cancel"); err != nil {
		return err
	}
	inv.Status = StatusCancelled
	inv.UpdatedAt = now
	return nil
}

// Exonerate forgives amount of the pending balance. Only a full exoneration
// of what is left moves the invoice to EXONERATED; otherwise its status is
// unchanged and further payments or exonerations are still accepted.
func (inv *Invoice) Exonerate(in ExonerationInput, now time.Time) (*Exoneration, error) {
	if err := inv.requireOpen("exonerate"); err != nil {
		return nil, err
	}
	amount := in.Amount
	if !amount.IsPositive() || !money.IsCents(amount) || amount.GreaterThan(inv.PendingAmount) {
		return nil, fmt.Errorf("%w: requested %s, pending %s", ErrExonerationExceedsPending, amount, inv.PendingAmount)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidExoneration)
	}
	if strings.TrimSpace(in.AuthorizedBy) == "" {
		return nil, fmt.Errorf("%w: authorized_by is required", ErrInvalidExoneration)
	}

	ex := &Exoneration{
		ID:               uuid.New(),
		InvoiceID:        inv.ID,
		OriginalAmount:   inv.PendingAmount,
		ExoneratedAmount: amount,
		Reason:           reason,
		AuthorizedBy:     in.AuthorizedBy,
		CreatedAt:        now,
	}
	inv.PendingAmount = inv.PendingAmount.Sub(amount)
	if inv.PendingAmount.IsZero() {
		inv.Status = StatusExonerated
	}
	inv.UpdatedAt = now
	return ex, nil
}

// MarkPrinted flags the exoneration document as printed. Repeated calls are
// no-ops and keep the first PrintedAt. It reports whether anything changed.
func (e *Exoneration) MarkPrinted(now time.Time) bool {
	if e.IsPrinted && e.PrintedAt != nil {
		return false
	}
	e.IsPrinted = true
	if e.PrintedAt == nil {
		at := now
		e.PrintedAt = &at
	}
	return true
}

// Balanced reports whether paid + pending == total. It only holds for
// invoices that have not been cancelled or exonerated.
func (inv *Invoice) Balanced() bool {
	return inv.PaidAmount.Add(inv.PendingAmount).Equal(inv.TotalAmount)
}
