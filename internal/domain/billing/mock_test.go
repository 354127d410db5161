package billing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/coverage"
)

var errBoom = errors.New("boom")

// memStore backs the three mock repositories so Mutate effects show up in
// payment and exoneration listings.
type memStore struct {
	mu           sync.Mutex
	invoices     map[uuid.UUID]*Invoice
	lines        map[uuid.UUID][]*LineItem
	payments     []*Payment
	exonerations map[uuid.UUID]*Exoneration

	// conflicts makes the next N Mutate calls fail with ErrConcurrentUpdate.
	conflicts   int
	mutateCalls int
	createErr   error
}

func newMemStore() *memStore {
	return &memStore{
		invoices:     make(map[uuid.UUID]*Invoice),
		lines:        make(map[uuid.UUID][]*LineItem),
		exonerations: make(map[uuid.UUID]*Exoneration),
	}
}

func cloneInvoice(inv *Invoice) *Invoice {
	c := *inv
	c.LineItems = nil
	return &c
}

type mockInvoiceRepo struct{ s *memStore }

func (m *mockInvoiceRepo) Create(_ context.Context, inv *Invoice) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.createErr != nil {
		return m.s.createErr
	}
	m.s.invoices[inv.ID] = cloneInvoice(inv)
	m.s.lines[inv.ID] = inv.LineItems
	return nil
}

func (m *mockInvoiceRepo) GetByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	inv, ok := m.s.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

func (m *mockInvoiceRepo) List(_ context.Context, q InvoiceQuery) ([]*Invoice, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*Invoice
	for _, inv := range m.s.invoices {
		if q.Matches(inv) {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if q.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, total, nil
}

func (m *mockInvoiceRepo) LineItems(_ context.Context, invoiceID uuid.UUID) ([]*LineItem, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.lines[invoiceID], nil
}

func (m *mockInvoiceRepo) Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Invoice, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.mutateCalls++
	stored, ok := m.s.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	if m.s.conflicts > 0 {
		m.s.conflicts--
		return nil, ErrConcurrentUpdate
	}
	inv := cloneInvoice(stored)
	effects, err := fn(ctx, inv)
	if err != nil {
		return nil, err
	}
	inv.Version = stored.Version + 1
	m.s.invoices[id] = inv
	if effects != nil && effects.Payment != nil {
		m.s.payments = append(m.s.payments, effects.Payment)
	}
	if effects != nil && effects.Exoneration != nil {
		m.s.exonerations[effects.Exoneration.ID] = effects.Exoneration
	}
	return cloneInvoice(inv), nil
}

type mockPaymentRepo struct{ s *memStore }

func (m *mockPaymentRepo) ListByInvoice(_ context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*Payment
	for _, p := range m.s.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockExonerationRepo struct{ s *memStore }

func (m *mockExonerationRepo) GetByID(_ context.Context, id uuid.UUID) (*Exoneration, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	e, ok := m.s.exonerations[id]
	if !ok {
		return nil, ErrExonerationNotFound
	}
	c := *e
	return &c, nil
}

func (m *mockExonerationRepo) ListByInvoice(_ context.Context, invoiceID uuid.UUID) ([]*Exoneration, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*Exoneration
	for _, e := range m.s.exonerations {
		if e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockExonerationRepo) MarkPrinted(_ context.Context, id uuid.UUID, at time.Time) (*Exoneration, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	e, ok := m.s.exonerations[id]
	if !ok {
		return nil, ErrExonerationNotFound
	}
	e.MarkPrinted(at)
	c := *e
	return &c, nil
}

// stubPricer prices every service from a fixed catalog at one coverage
// percent.
type stubPricer struct {
	prices  map[uuid.UUID]decimal.Decimal
	percent decimal.Decimal
	err     error
}

func (p *stubPricer) Calculate(_ context.Context, insuranceID *uuid.UUID, lines []coverage.LineInput) (*coverage.Calculation, error) {
	if p.err != nil {
		return nil, p.err
	}
	if len(lines) == 0 {
		return nil, coverage.ErrInvalidLineItem
	}
	priced := make([]coverage.PricedLine, 0, len(lines))
	for _, l := range lines {
		price, ok := p.prices[l.ServiceID]
		if !ok {
			return nil, coverage.ErrServiceNotFound
		}
		pct := decimal.Zero
		if insuranceID != nil {
			pct = p.percent
		}
		priced = append(priced, coverage.PricedLine{
			Service:         &coverage.BillableService{ID: l.ServiceID, Name: "svc", BasePrice: price},
			Quantity:        l.Quantity,
			UnitPrice:       price,
			CoveragePercent: pct,
		})
	}
	return coverage.Split(insuranceID, priced), nil
}

// fakeMetrics counts calls by method.
type fakeMetrics struct {
	mu          sync.Mutex
	created     int
	payments    []float64
	exonerated  []float64
	transitions []string
	rejected    []string
}

func (f *fakeMetrics) InvoiceCreated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
}

func (f *fakeMetrics) PaymentRecorded(amount float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, amount)
}

func (f *fakeMetrics) Exonerated(amount float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exonerated = append(f.exonerated, amount)
}

func (f *fakeMetrics) StatusChanged(from, to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, from+"->"+to)
}

func (f *fakeMetrics) Rejected(op, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, op+":"+code)
}

type fakeInvalidator struct {
	mu     sync.Mutex
	groups []string
}

func (f *fakeInvalidator) InvalidateGroup(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, prefix)
	return 0
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.groups)
}
