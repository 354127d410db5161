package coverage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medledger/medledger/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const uniqueViolation = "23505"

// =========== Service Repository ===========

type serviceRepoPG struct{ pool *pgxpool.Pool }

func NewServiceRepoPG(pool *pgxpool.Pool) ServiceRepository { return &serviceRepoPG{pool: pool} }

func (r *serviceRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const svcCols = `id, name, base_price, price_type, active, created_at`

func scanService(row pgx.Row) (*BillableService, error) {
	var s BillableService
	err := row.Scan(&s.ID, &s.Name, &s.BasePrice, &s.PriceType, &s.Active, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	return &s, err
}

func (r *serviceRepoPG) Create(ctx context.Context, s *BillableService) error {
	s.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO service (id, name, base_price, price_type, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		s.ID, s.Name, s.BasePrice, s.PriceType, s.Active).Scan(&s.CreatedAt)
}

func (r *serviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*BillableService, error) {
	return scanService(r.conn(ctx).QueryRow(ctx, `SELECT `+svcCols+` FROM service WHERE id = $1`, id))
}

func (r *serviceRepoPG) List(ctx context.Context, limit, offset int) ([]*BillableService, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM service`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+svcCols+` FROM service ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*BillableService
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// =========== Coverage Rule Repository ===========

type ruleRepoPG struct{ pool *pgxpool.Pool }

func NewRuleRepoPG(pool *pgxpool.Pool) RuleRepository { return &ruleRepoPG{pool: pool} }

func (r *ruleRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const ruleCols = `id, insurance_id, service_id, coverage_percent, is_active, created_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var rl Rule
	err := row.Scan(&rl.ID, &rl.InsuranceID, &rl.ServiceID, &rl.CoveragePercent, &rl.IsActive, &rl.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	return &rl, err
}

func (r *ruleRepoPG) Create(ctx context.Context, rl *Rule) error {
	rl.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO coverage_rule (id, insurance_id, service_id, coverage_percent, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		rl.ID, rl.InsuranceID, rl.ServiceID, rl.CoveragePercent, rl.IsActive).Scan(&rl.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: insurance %s service %s", ErrCoverageRuleConflict, rl.InsuranceID, rl.ServiceID)
	}
	return err
}

func (r *ruleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Rule, error) {
	return scanRule(r.conn(ctx).QueryRow(ctx, `SELECT `+ruleCols+` FROM coverage_rule WHERE id = $1`, id))
}

func (r *ruleRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE coverage_rule SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *ruleRepoPG) ListActive(ctx context.Context, insuranceID, serviceID uuid.UUID) ([]*Rule, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+ruleCols+` FROM coverage_rule
		WHERE insurance_id = $1 AND service_id = $2 AND is_active
		ORDER BY created_at`, insuranceID, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Rule
	for rows.Next() {
		rl, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rl)
	}
	return items, rows.Err()
}

func (r *ruleRepoPG) ListByInsurance(ctx context.Context, insuranceID uuid.UUID, limit, offset int) ([]*Rule, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM coverage_rule WHERE insurance_id = $1`, insuranceID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+ruleCols+` FROM coverage_rule WHERE insurance_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, insuranceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Rule
	for rows.Next() {
		rl, err := scanRule(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rl)
	}
	return items, total, rows.Err()
}
