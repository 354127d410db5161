package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medledger/medledger/internal/platform/audit"
)

type auditSink struct{ d *DB }

// AuditSink writes events to ledger_audit_event, inside the caller's
// transaction when ctx carries one.
func (d *DB) AuditSink() audit.Sink { return &auditSink{d: d} }

func (s *auditSink) Record(ctx context.Context, e audit.Event) error {
	_, err := s.d.ext(ctx).ExecContext(ctx, `
		INSERT INTO ledger_audit_event
			(id, entity, entity_id, action, actor, outcome, code, before_state, after_state, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Entity, e.EntityID, e.Action, e.Actor, e.Outcome, e.Code,
		nullJSON(e.Before), nullJSON(e.After), e.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

type auditRow struct {
	ID         uuid.UUID      `db:"id"`
	Entity     string         `db:"entity"`
	EntityID   uuid.UUID      `db:"entity_id"`
	Action     string         `db:"action"`
	Actor      string         `db:"actor"`
	Outcome    string         `db:"outcome"`
	Code       string         `db:"code"`
	Before     sql.NullString `db:"before_state"`
	After      sql.NullString `db:"after_state"`
	OccurredAt time.Time      `db:"occurred_at"`
}

// AuditEvents returns the stored trail of one entity, oldest first.
func (d *DB) AuditEvents(ctx context.Context, entity string, entityID uuid.UUID) ([]audit.Event, error) {
	var rows []auditRow
	err := sqlx.SelectContext(ctx, d.ext(ctx), &rows, `
		SELECT id, entity, entity_id, action, actor, outcome, code, before_state, after_state, occurred_at
		FROM ledger_audit_event WHERE entity = ? AND entity_id = ?
		ORDER BY occurred_at, rowid`, entity, entityID)
	if err != nil {
		return nil, err
	}
	out := make([]audit.Event, 0, len(rows))
	for _, r := range rows {
		e := audit.Event{
			ID: r.ID, Entity: r.Entity, EntityID: r.EntityID, Action: r.Action, Actor: r.Actor,
			Outcome: r.Outcome, Code: r.Code, OccurredAt: r.OccurredAt,
		}
		if r.Before.Valid {
			e.Before = json.RawMessage(r.Before.String)
		}
		if r.After.Valid {
			e.After = json.RawMessage(r.After.String)
		}
		out = append(out, e)
	}
	return out, nil
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
