package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/coverage"
	"github.com/medledger/medledger/internal/platform/audit"
	"github.com/medledger/medledger/internal/platform/auth"
	"github.com/medledger/medledger/internal/platform/cache"
	"github.com/medledger/medledger/internal/platform/clock"
)

type testEnv struct {
	svc     *Service
	store   *memStore
	pricer  *stubPricer
	audit   *audit.Memory
	metrics *fakeMetrics
	cache   *fakeInvalidator
	clock   *clock.Fixed
}

func newTestEnv() *testEnv {
	store := newMemStore()
	env := &testEnv{
		store:   store,
		pricer:  &stubPricer{prices: map[uuid.UUID]decimal.Decimal{}, percent: d("80")},
		audit:   &audit.Memory{},
		metrics: &fakeMetrics{},
		cache:   &fakeInvalidator{},
		clock:   clock.NewFixed(t0),
	}
	env.svc = NewService(&mockInvoiceRepo{s: store}, &mockPaymentRepo{s: store}, &mockExonerationRepo{s: store}, env.pricer, zerolog.Nop())
	env.svc.SetAudit(env.audit)
	env.svc.SetMetrics(env.metrics)
	env.svc.SetCache(env.cache)
	env.svc.SetClock(env.clock)
	return env
}

func (env *testEnv) service(price string) uuid.UUID {
	id := uuid.New()
	env.pricer.prices[id] = d(price)
	return id
}

func (env *testEnv) invoice(t *testing.T, price string) *Invoice {
	t.Helper()
	inv, err := env.svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		PatientID: uuid.New(),
		Lines:     []coverage.LineInput{{ServiceID: env.service(price), Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	return inv
}

func userCtx() context.Context {
	return auth.WithUser(context.Background(), "cashier-1", []string{"billing"})
}

func TestService_CreateInvoice(t *testing.T) {
	env := newTestEnv()
	insurer := uuid.New()
	consult := env.service("100")
	due := t0.AddDate(0, 0, 30)

	inv, err := env.svc.CreateInvoice(userCtx(), CreateInvoiceInput{
		PatientID:   uuid.New(),
		InsuranceID: &insurer,
		DueDate:     &due,
		Lines:       []coverage.LineInput{{ServiceID: consult, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.InvoiceNumber != InvoiceNumber(inv.ID, t0) {
		t.Errorf("unexpected invoice number %s", inv.InvoiceNumber)
	}
	if inv.InsuranceCalculation == nil || !inv.InsuranceCalculation.TotalInsuranceCovers.Equal(d("80")) {
		t.Errorf("expected insurer to cover 80, got %+v", inv.InsuranceCalculation)
	}
	if li := inv.LineItems[0]; !li.PatientPays.Equal(d("20")) {
		t.Errorf("expected patient pays 20, got %s", li.PatientPays)
	}
	if env.metrics.created != 1 || env.cache.count() != 1 {
		t.Errorf("expected created metric and cache invalidation, got %d/%d", env.metrics.created, env.cache.count())
	}
	events := env.audit.Events()
	if len(events) != 1 || events[0].Action != "create" || events[0].Actor != "cashier-1" {
		t.Errorf("unexpected audit events %+v", events)
	}

	stored, err := env.svc.GetInvoice(context.Background(), inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.LineItems) != 1 {
		t.Errorf("expected line items on fetched invoice, got %d", len(stored.LineItems))
	}
}

func TestService_CreateInvoice_Errors(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.CreateInvoice(context.Background(), CreateInvoiceInput{}); !errors.Is(err, ErrInvalidInvoice) {
		t.Errorf("expected ErrInvalidInvoice, got %v", err)
	}
	_, err := env.svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		PatientID: uuid.New(),
		Lines:     []coverage.LineInput{{ServiceID: uuid.New(), Quantity: 1}},
	})
	if !errors.Is(err, coverage.ErrServiceNotFound) {
		t.Errorf("expected ErrServiceNotFound, got %v", err)
	}
	if len(env.store.invoices) != 0 {
		t.Error("no invoice should be stored on failure")
	}

	env.store.createErr = errBoom
	if _, err := env.svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		PatientID: uuid.New(),
		Lines:     []coverage.LineInput{{ServiceID: env.service("5"), Quantity: 1}},
	}); !errors.Is(err, errBoom) {
		t.Errorf("expected repository error, got %v", err)
	}
}

func TestService_RecordPayment(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")

	got, p, err := env.svc.RecordPayment(userCtx(), inv.ID, PaymentInput{Amount: d("60"), Method: "card"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusPartial || !got.PendingAmount.Equal(d("40")) || got.Version != 2 {
		t.Errorf("unexpected invoice state %+v", got.Snapshot())
	}
	if p.RecordedBy != "cashier-1" {
		t.Errorf("expected recorder from context, got %q", p.RecordedBy)
	}

	got, _, err = env.svc.RecordPayment(userCtx(), inv.ID, PaymentInput{Amount: d("40")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPaid || !got.PendingAmount.IsZero() {
		t.Errorf("expected PAID with nothing pending, got %+v", got.Snapshot())
	}

	payments, err := env.svc.ListPayments(context.Background(), inv.ID)
	if err != nil || len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d (%v)", len(payments), err)
	}
	if len(env.metrics.payments) != 2 {
		t.Errorf("expected 2 payment metrics, got %v", env.metrics.payments)
	}
	want := []string{"PENDING->PARTIAL", "PARTIAL->PAID"}
	if len(env.metrics.transitions) != 2 || env.metrics.transitions[0] != want[0] || env.metrics.transitions[1] != want[1] {
		t.Errorf("expected transitions %v, got %v", want, env.metrics.transitions)
	}
	// create + two payments
	if env.cache.count() != 3 {
		t.Errorf("expected 3 report cache invalidations, got %d", env.cache.count())
	}
	for _, g := range env.cache.groups {
		if g != cache.ReportGroup {
			t.Errorf("unexpected invalidated group %q", g)
		}
	}
}

func TestService_RecordPayment_RejectedIsAudited(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")
	if _, _, err := env.svc.RecordPayment(userCtx(), inv.ID, PaymentInput{Amount: d("100")}); err != nil {
		t.Fatal(err)
	}

	_, _, err := env.svc.RecordPayment(userCtx(), inv.ID, PaymentInput{Amount: d("1")})
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}

	events := env.audit.Events()
	last := events[len(events)-1]
	if last.Outcome != audit.OutcomeRejected || last.Code != "INVALID_STATE_TRANSITION" || last.Action != "record_payment" {
		t.Errorf("unexpected rejected event %+v", last)
	}
	var before Snapshot
	if err := json.Unmarshal(last.Before, &before); err != nil || before.Status != StatusPaid {
		t.Errorf("rejected event should carry the unchanged snapshot, got %s (%v)", last.Before, err)
	}
	if last.After != nil {
		t.Errorf("rejected event should have no after snapshot, got %s", last.After)
	}
	if len(env.metrics.rejected) != 1 || env.metrics.rejected[0] != "record_payment:INVALID_STATE_TRANSITION" {
		t.Errorf("unexpected rejection metrics %v", env.metrics.rejected)
	}
	stored, _ := env.svc.GetInvoice(context.Background(), inv.ID)
	if stored.Version != 2 {
		t.Errorf("rejected operation must not bump version, got %d", stored.Version)
	}
}

func TestService_AppliedEventSnapshots(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")
	if _, _, err := env.svc.RecordPayment(userCtx(), inv.ID, PaymentInput{Amount: d("25")}); err != nil {
		t.Fatal(err)
	}
	events := env.audit.Events()
	applied := events[len(events)-1]
	var before, after Snapshot
	if err := json.Unmarshal(applied.Before, &before); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(applied.After, &after); err != nil {
		t.Fatal(err)
	}
	if before.Status != StatusPending || after.Status != StatusPartial {
		t.Errorf("unexpected transition %s -> %s", before.Status, after.Status)
	}
	if !after.PendingAmount.Equal(d("75")) || after.Version != before.Version+1 {
		t.Errorf("unexpected after snapshot %+v", after)
	}
	if applied.Outcome != audit.OutcomeApplied || applied.Actor != "cashier-1" {
		t.Errorf("unexpected event %+v", applied)
	}
}

type failingSink struct{}

func (failingSink) Record(context.Context, audit.Event) error { return errBoom }

func TestService_AuditFailureAbortsMutation(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")
	env.svc.SetAudit(failingSink{})

	if _, _, err := env.svc.RecordPayment(userCtx(), inv.ID, PaymentInput{Amount: d("10")}); !errors.Is(err, errBoom) {
		t.Fatalf("expected audit error, got %v", err)
	}
	stored, _ := env.svc.GetInvoice(context.Background(), inv.ID)
	if !stored.PaidAmount.IsZero() {
		t.Errorf("payment applied despite audit failure: %s", stored.PaidAmount)
	}
}

func TestService_RetriesConcurrentUpdate(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")
	env.store.conflicts = 2

	got, _, err := env.svc.RecordPayment(userCtx(), inv.ID, PaymentInput{Amount: d("10")})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !got.PaidAmount.Equal(d("10")) {
		t.Errorf("expected paid 10, got %s", got.PaidAmount)
	}
	if env.store.mutateCalls != 3 {
		t.Errorf("expected 3 attempts, got %d", env.store.mutateCalls)
	}
}

func TestService_RetryGivesUp(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")
	env.store.conflicts = maxMutateAttempts

	if _, _, err := env.svc.RecordPayment(userCtx(), inv.ID, PaymentInput{Amount: d("10")}); !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if len(env.metrics.rejected) != 0 {
		t.Error("version conflicts are not rule rejections")
	}
}

// Concurrent payments against one invoice never double-spend the pending
// amount: exactly pending/amount of them succeed.
func TestService_ConcurrentPayments(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := env.svc.RecordPayment(userCtx(), inv.ID, PaymentInput{Amount: d("10")}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("expected 10 successful payments, got %d", succeeded)
	}
	stored, _ := env.svc.GetInvoice(context.Background(), inv.ID)
	if stored.Status != StatusPaid || !stored.PaidAmount.Equal(d("100")) || !stored.PendingAmount.IsZero() {
		t.Errorf("unexpected final state %+v", stored.Snapshot())
	}
}

func TestService_Cancel(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")

	got, err := env.svc.Cancel(userCtx(), inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got.Status)
	}
	if _, err := env.svc.Cancel(userCtx(), inv.ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := env.svc.Cancel(userCtx(), uuid.New()); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("expected ErrInvoiceNotFound, got %v", err)
	}
}

func TestService_Exonerate(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")

	got, ex, err := env.svc.Exonerate(userCtx(), inv.ID, ExonerationInput{Amount: d("100"), Reason: "charity"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusExonerated || !got.PendingAmount.IsZero() {
		t.Errorf("unexpected state %+v", got.Snapshot())
	}
	if ex.AuthorizedBy != "cashier-1" {
		t.Errorf("expected authorizer from context, got %q", ex.AuthorizedBy)
	}
	if len(env.metrics.exonerated) != 1 || env.metrics.exonerated[0] != 100 {
		t.Errorf("unexpected exoneration metrics %v", env.metrics.exonerated)
	}

	list, err := env.svc.ListExonerations(context.Background(), inv.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one exoneration, got %d (%v)", len(list), err)
	}
}

func TestService_Exonerate_ExceedsPending(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")
	_, _, err := env.svc.Exonerate(userCtx(), inv.ID, ExonerationInput{Amount: d("150"), Reason: "x"})
	if !errors.Is(err, ErrExonerationExceedsPending) {
		t.Fatalf("expected ErrExonerationExceedsPending, got %v", err)
	}
	if env.metrics.rejected[0] != "exonerate:EXONERATION_EXCEEDS_PENDING" {
		t.Errorf("unexpected rejection metrics %v", env.metrics.rejected)
	}
}

func TestService_MarkExonerationPrinted(t *testing.T) {
	env := newTestEnv()
	inv := env.invoice(t, "100")
	_, ex, err := env.svc.Exonerate(userCtx(), inv.ID, ExonerationInput{Amount: d("30"), Reason: "r"})
	if err != nil {
		t.Fatal(err)
	}

	first, err := env.svc.MarkExonerationPrinted(context.Background(), ex.ID)
	if err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(time.Hour)
	second, err := env.svc.MarkExonerationPrinted(context.Background(), ex.ID)
	if err != nil {
		t.Fatalf("second print must not error: %v", err)
	}
	if !first.IsPrinted || !second.IsPrinted || !second.PrintedAt.Equal(*first.PrintedAt) {
		t.Errorf("printed_at changed: %v -> %v", first.PrintedAt, second.PrintedAt)
	}
	if _, err := env.svc.MarkExonerationPrinted(context.Background(), uuid.New()); !errors.Is(err, ErrExonerationNotFound) {
		t.Errorf("expected ErrExonerationNotFound, got %v", err)
	}
}

func TestService_ListInvoices(t *testing.T) {
	env := newTestEnv()
	a := env.invoice(t, "100")
	env.clock.Advance(time.Hour)
	b := env.invoice(t, "50")
	if _, err := env.svc.Cancel(userCtx(), b.ID); err != nil {
		t.Fatal(err)
	}

	items, total, err := env.svc.ListInvoices(context.Background(), InvoiceQuery{Statuses: OpenStatuses})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || items[0].ID != a.ID {
		t.Errorf("expected only the open invoice, got %d", total)
	}
	if _, _, err := env.svc.ListInvoices(context.Background(), InvoiceQuery{Limit: -1}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestService_ReadsRequireInvoice(t *testing.T) {
	env := newTestEnv()
	missing := uuid.New()
	if _, err := env.svc.ListPayments(context.Background(), missing); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("ListPayments: expected ErrInvoiceNotFound, got %v", err)
	}
	if _, err := env.svc.LineItems(context.Background(), missing); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("LineItems: expected ErrInvoiceNotFound, got %v", err)
	}
	if _, err := env.svc.GetInvoice(context.Background(), missing); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("GetInvoice: expected ErrInvoiceNotFound, got %v", err)
	}
}
