package coverage

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

type mockServiceRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*BillableService
}

func newMockServiceRepo() *mockServiceRepo {
	return &mockServiceRepo{store: make(map[uuid.UUID]*BillableService)}
}

func (m *mockServiceRepo) Create(_ context.Context, s *BillableService) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockServiceRepo) GetByID(_ context.Context, id uuid.UUID) (*BillableService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockServiceRepo) List(_ context.Context, limit, offset int) ([]*BillableService, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BillableService
	for _, s := range m.store {
		out = append(out, s)
	}
	return out, len(out), nil
}

type mockRuleRepo struct {
	mu      sync.Mutex
	store   map[uuid.UUID]*Rule
	listErr error
}

func newMockRuleRepo() *mockRuleRepo {
	return &mockRuleRepo{store: make(map[uuid.UUID]*Rule)}
}

func (m *mockRuleRepo) Create(_ context.Context, r *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *mockRuleRepo) GetByID(_ context.Context, id uuid.UUID) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRuleRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return ErrRuleNotFound
	}
	r.IsActive = false
	return nil
}

func (m *mockRuleRepo) ListActive(_ context.Context, insuranceID, serviceID uuid.UUID) ([]*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*Rule
	for _, r := range m.store {
		if r.InsuranceID == insuranceID && r.ServiceID == serviceID && r.IsActive {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRuleRepo) ListByInsurance(_ context.Context, insuranceID uuid.UUID, limit, offset int) ([]*Rule, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Rule
	for _, r := range m.store {
		if r.InsuranceID == insuranceID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

var errBoom = errors.New("boom")
