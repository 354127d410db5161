package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medledger/medledger/internal/platform/db"
)

// PGSink writes events to ledger_audit_event. Inside a ledger mutation it
// joins the mutation's transaction, so a failed audit write aborts it.
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

func (s *PGSink) Record(ctx context.Context, e Event) error {
	const q = `
		INSERT INTO ledger_audit_event
			(id, entity, entity_id, action, actor, outcome, code, before_state, after_state, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	args := []interface{}{
		e.ID, e.Entity, e.EntityID, e.Action, e.Actor, e.Outcome, e.Code,
		[]byte(orNull(e.Before)), []byte(orNull(e.After)), e.OccurredAt,
	}

	var err error
	if tx := db.TxFromContext(ctx); tx != nil {
		_, err = tx.Exec(ctx, q, args...)
	} else {
		_, err = s.pool.Exec(ctx, q, args...)
	}
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
