package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medledger/medledger/internal/domain/coverage"
	"github.com/medledger/medledger/internal/platform/audit"
	"github.com/medledger/medledger/internal/platform/auth"
	"github.com/medledger/medledger/internal/platform/cache"
	"github.com/medledger/medledger/internal/platform/clock"
)

// maxMutateAttempts bounds retries when an optimistic store reports a
// version conflict.
const maxMutateAttempts = 3

// Pricer splits requested lines between insurer and patient.
type Pricer interface {
	Calculate(ctx context.Context, insuranceID *uuid.UUID, lines []coverage.LineInput) (*coverage.Calculation, error)
}

// Metrics receives ledger activity. *telemetry.Metrics satisfies it.
type Metrics interface {
	InvoiceCreated()
	PaymentRecorded(amount float64)
	Exonerated(amount float64)
	StatusChanged(from, to string)
	Rejected(operation, code string)
}

// Invalidator drops cached report groups after ledger writes.
type Invalidator interface {
	InvalidateGroup(prefix string) int
}

type nopMetrics struct{}

func (nopMetrics) InvoiceCreated()           {}
func (nopMetrics) PaymentRecorded(float64)   {}
func (nopMetrics) Exonerated(float64)        {}
func (nopMetrics) StatusChanged(_, _ string) {}
func (nopMetrics) Rejected(_, _ string)      {}

// Service owns every ledger write. Amounts and status only change through
// RecordPayment, Cancel and Exonerate, each applied as one atomic mutation of
// a single invoice.
type Service struct {
	invoices     InvoiceRepository
	payments     PaymentRepository
	exonerations ExonerationRepository
	pricer       Pricer
	audit        audit.Sink
	metrics      Metrics
	cache        Invalidator
	clock        clock.Clock
	logger       zerolog.Logger
}

func NewService(invoices InvoiceRepository, payments PaymentRepository, exonerations ExonerationRepository, pricer Pricer, logger zerolog.Logger) *Service {
	return &Service{
		invoices:     invoices,
		payments:     payments,
		exonerations: exonerations,
		pricer:       pricer,
		audit:        audit.NewLogSink(logger),
		metrics:      nopMetrics{},
		cache:        cache.Nop{},
		clock:        clock.System(),
		logger:       logger.With().Str("component", "billing").Logger(),
	}
}

func (s *Service) SetAudit(sink audit.Sink) {
	if sink != nil {
		s.audit = sink
	}
}

func (s *Service) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

func (s *Service) SetCache(c Invalidator) {
	if c != nil {
		s.cache = c
	}
}

func (s *Service) SetClock(c clock.Clock) {
	if c != nil {
		s.clock = c
	}
}

// -- Invoices --

type CreateInvoiceInput struct {
	PatientID     uuid.UUID            `json:"patient_id"`
	InsuranceID   *uuid.UUID           `json:"insurance_id,omitempty"`
	AppointmentID *uuid.UUID           `json:"appointment_id,omitempty"`
	DueDate       *time.Time           `json:"due_date,omitempty"`
	Notes         string               `json:"notes,omitempty"`
	Lines         []coverage.LineInput `json:"lines"`
}

// CreateInvoice prices the lines and persists a PENDING invoice with its
// line items.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*Invoice, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInvoice)
	}
	calc, err := s.pricer.Calculate(ctx, in.InsuranceID, in.Lines)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	inv, err := NewInvoice("", in.PatientID, calc, now)
	if err != nil {
		return nil, err
	}
	inv.InvoiceNumber = InvoiceNumber(inv.ID, now)
	inv.AppointmentID = in.AppointmentID
	inv.DueDate = in.DueDate
	inv.Notes = in.Notes

	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	if err := s.record(ctx, "create", inv.ID, nil, inv.Snapshot(), audit.OutcomeApplied, ""); err != nil {
		s.logger.Error().Err(err).Str("invoice_id", inv.ID.String()).Msg("audit write failed")
	}

	s.metrics.InvoiceCreated()
	s.cache.InvalidateGroup(cache.ReportGroup)
	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Str("total", inv.TotalAmount.StringFixed(2)).
		Msg("invoice created")
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.invoices.LineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.LineItems = items
	return inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, q InvoiceQuery) ([]*Invoice, int, error) {
	if err := q.Validate(); err != nil {
		return nil, 0, err
	}
	return s.invoices.List(ctx, q)
}

func (s *Service) LineItems(ctx context.Context, invoiceID uuid.UUID) ([]*LineItem, error) {
	if _, err := s.invoices.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.invoices.LineItems(ctx, invoiceID)
}

func (s *Service) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	if _, err := s.invoices.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.payments.ListByInvoice(ctx, invoiceID)
}

func (s *Service) ListExonerations(ctx context.Context, invoiceID uuid.UUID) ([]*Exoneration, error) {
	if _, err := s.invoices.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.exonerations.ListByInvoice(ctx, invoiceID)
}

// -- Ledger operations --

// RecordPayment applies one payment to the invoice. The recorder defaults to
// the authenticated caller.
func (s *Service) RecordPayment(ctx context.Context, invoiceID uuid.UUID, in PaymentInput) (*Invoice, *Payment, error) {
	if in.RecordedBy == "" {
		in.RecordedBy = auth.UserIDFromContext(ctx)
	}
	var payment *Payment
	inv, err := s.mutate(ctx, "record_payment", invoiceID, func(inv *Invoice, now time.Time) (*Effects, error) {
		p, err := inv.RecordPayment(in, now)
		if err != nil {
			return nil, err
		}
		payment = p
		return &Effects{Payment: p}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.metrics.PaymentRecorded(payment.Amount.InexactFloat64())
	return inv, payment, nil
}

func (s *Service) Cancel(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	return s.mutate(ctx, "cancel", invoiceID, func(inv *Invoice, now time.Time) (*Effects, error) {
		return nil, inv.Cancel(now)
	})
}

// Exonerate forgives part or all of the pending amount. AuthorizedBy
// defaults to the authenticated caller.
func (s *Service) Exonerate(ctx context.Context, invoiceID uuid.UUID, in ExonerationInput) (*Invoice, *Exoneration, error) {
	if in.AuthorizedBy == "" {
		in.AuthorizedBy = auth.UserIDFromContext(ctx)
	}
	var ex *Exoneration
	inv, err := s.mutate(ctx, "exonerate", invoiceID, func(inv *Invoice, now time.Time) (*Effects, error) {
		e, err := inv.Exonerate(in, now)
		if err != nil {
			return nil, err
		}
		ex = e
		return &Effects{Exoneration: e}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.metrics.Exonerated(ex.ExoneratedAmount.InexactFloat64())
	return inv, ex, nil
}

// MarkExonerationPrinted flags the exoneration document as printed. Calling
// it again returns the record unchanged.
func (s *Service) MarkExonerationPrinted(ctx context.Context, id uuid.UUID) (*Exoneration, error) {
	ex, err := s.exonerations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ex.IsPrinted && ex.PrintedAt != nil {
		return ex, nil
	}
	ex, err = s.exonerations.MarkPrinted(ctx, id, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("exoneration_id", id.String()).Msg("exoneration marked printed")
	return ex, nil
}

type applyFunc func(inv *Invoice, now time.Time) (*Effects, error)

// mutate runs apply inside the repository's per-invoice atomic section and
// writes the applied audit event in the same transaction. Rejections are
// audited separately since the mutation itself rolls back.
func (s *Service) mutate(ctx context.Context, op string, id uuid.UUID, apply applyFunc) (*Invoice, error) {
	var before Snapshot
	var inv *Invoice
	var err error
	for attempt := 1; attempt <= maxMutateAttempts; attempt++ {
		inv, err = s.invoices.Mutate(ctx, id, func(ctx context.Context, inv *Invoice) (*Effects, error) {
			before = inv.Snapshot()
			effects, err := apply(inv, s.clock.Now())
			if err != nil {
				return nil, err
			}
			after := inv.Snapshot()
			after.Version = before.Version + 1
			if err := s.record(ctx, op, inv.ID, before, after, audit.OutcomeApplied, ""); err != nil {
				return nil, fmt.Errorf("audit %s: %w", op, err)
			}
			return effects, nil
		})
		if !errors.Is(err, ErrConcurrentUpdate) {
			break
		}
		s.logger.Debug().Str("invoice_id", id.String()).Int("attempt", attempt).Msg("version conflict, retrying")
	}

	if err != nil {
		if IsRejection(err) {
			code := ErrorCode(err)
			if aerr := s.record(ctx, op, id, before, nil, audit.OutcomeRejected, code); aerr != nil {
				s.logger.Error().Err(aerr).Str("invoice_id", id.String()).Msg("audit write failed")
			}
			s.metrics.Rejected(op, code)
			s.logger.Warn().Err(err).Str("invoice_id", id.String()).Str("operation", op).Msg("ledger operation rejected")
		}
		return nil, err
	}

	s.metrics.StatusChanged(string(before.Status), string(inv.Status))
	s.cache.InvalidateGroup(cache.ReportGroup)
	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("operation", op).
		Str("status", string(inv.Status)).
		Str("paid", inv.PaidAmount.StringFixed(2)).
		Str("pending", inv.PendingAmount.StringFixed(2)).
		Msg("ledger operation applied")
	return inv, nil
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, before, after interface{}, outcome, code string) error {
	e := audit.Event{
		ID:         uuid.New(),
		Entity:     "invoice",
		EntityID:   id,
		Action:     action,
		Actor:      auth.UserIDFromContext(ctx),
		Outcome:    outcome,
		Code:       code,
		OccurredAt: s.clock.Now(),
	}
	var err error
	if e.Before, err = marshalSnapshot(before); err != nil {
		return err
	}
	if e.After, err = marshalSnapshot(after); err != nil {
		return err
	}
	return s.audit.Record(ctx, e)
}

func marshalSnapshot(v interface{}) (json.RawMessage, error) {
	switch snap := v.(type) {
	case nil:
		return nil, nil
	case Snapshot:
		if snap.Status == "" {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
