package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medledger/medledger/internal/domain/coverage"
)

// =========== Service Repository ===========

type serviceRepo struct{ d *DB }

func (d *DB) Services() coverage.ServiceRepository { return &serviceRepo{d: d} }

const svcCols = `id, name, base_price, price_type, active, created_at`

func (r *serviceRepo) Create(ctx context.Context, s *coverage.BillableService) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()
	_, err := r.d.ext(ctx).ExecContext(ctx, `
		INSERT INTO service (id, name, base_price, price_type, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.BasePrice, s.PriceType, s.Active, s.CreatedAt)
	return err
}

func (r *serviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*coverage.BillableService, error) {
	var s coverage.BillableService
	err := sqlx.GetContext(ctx, r.d.ext(ctx), &s, `SELECT `+svcCols+` FROM service WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coverage.ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *serviceRepo) List(ctx context.Context, limit, offset int) ([]*coverage.BillableService, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.d.ext(ctx), &total, `SELECT COUNT(*) FROM service`); err != nil {
		return nil, 0, err
	}
	var items []*coverage.BillableService
	err := sqlx.SelectContext(ctx, r.d.ext(ctx), &items,
		`SELECT `+svcCols+` FROM service ORDER BY name LIMIT ? OFFSET ?`, limit, offset)
	return items, total, err
}

// =========== Coverage Rule Repository ===========

type ruleRepo struct{ d *DB }

func (d *DB) Rules() coverage.RuleRepository { return &ruleRepo{d: d} }

const ruleCols = `id, insurance_id, service_id, coverage_percent, is_active, created_at`

func (r *ruleRepo) Create(ctx context.Context, rl *coverage.Rule) error {
	rl.ID = uuid.New()
	rl.CreatedAt = time.Now().UTC()
	_, err := r.d.ext(ctx).ExecContext(ctx, `
		INSERT INTO coverage_rule (id, insurance_id, service_id, coverage_percent, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rl.ID, rl.InsuranceID, rl.ServiceID, rl.CoveragePercent, rl.IsActive, rl.CreatedAt)
	if isUnique(err) {
		return fmt.Errorf("%w: insurance %s service %s", coverage.ErrCoverageRuleConflict, rl.InsuranceID, rl.ServiceID)
	}
	return err
}

func (r *ruleRepo) GetByID(ctx context.Context, id uuid.UUID) (*coverage.Rule, error) {
	var rl coverage.Rule
	err := sqlx.GetContext(ctx, r.d.ext(ctx), &rl, `SELECT `+ruleCols+` FROM coverage_rule WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coverage.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rl, nil
}

func (r *ruleRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := r.d.ext(ctx).ExecContext(ctx, `UPDATE coverage_rule SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coverage.ErrRuleNotFound
	}
	return nil
}

func (r *ruleRepo) ListActive(ctx context.Context, insuranceID, serviceID uuid.UUID) ([]*coverage.Rule, error) {
	var items []*coverage.Rule
	err := sqlx.SelectContext(ctx, r.d.ext(ctx), &items, `
		SELECT `+ruleCols+` FROM coverage_rule
		WHERE insurance_id = ? AND service_id = ? AND is_active = 1
		ORDER BY created_at`, insuranceID, serviceID)
	return items, err
}

func (r *ruleRepo) ListByInsurance(ctx context.Context, insuranceID uuid.UUID, limit, offset int) ([]*coverage.Rule, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.d.ext(ctx), &total,
		`SELECT COUNT(*) FROM coverage_rule WHERE insurance_id = ?`, insuranceID); err != nil {
		return nil, 0, err
	}
	var items []*coverage.Rule
	err := sqlx.SelectContext(ctx, r.d.ext(ctx), &items, `
		SELECT `+ruleCols+` FROM coverage_rule WHERE insurance_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, insuranceID, limit, offset)
	return items, total, err
}
