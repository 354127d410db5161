// Package audit records before/after snapshots of ledger mutations.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
)

// Event is one audited operation. Before and After are JSON snapshots
// produced by the emitting domain.
type Event struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Entity     string          `json:"entity" db:"entity"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Action     string          `json:"action" db:"action"`
	Actor      string          `json:"actor" db:"actor"`
	Outcome    string          `json:"outcome" db:"outcome"`
	Code       string          `json:"code,omitempty" db:"code"`
	Before     json.RawMessage `json:"before" db:"before_state"`
	After      json.RawMessage `json:"after" db:"after_state"`
	OccurredAt time.Time       `json:"occurred_at" db:"occurred_at"`
}

// Sink persists or forwards events. A Sink called with a context carrying a
// database transaction should write inside it.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Record(_ context.Context, e Event) error {
	evt := s.logger.Info()
	if e.Outcome == OutcomeRejected {
		evt = s.logger.Warn()
	}
	evt.
		Str("audit_id", e.ID.String()).
		Str("entity", e.Entity).
		Str("entity_id", e.EntityID.String()).
		Str("action", e.Action).
		Str("actor", e.Actor).
		Str("outcome", e.Outcome).
		Str("code", e.Code).
		RawJSON("before", orNull(e.Before)).
		RawJSON("after", orNull(e.After)).
		Time("occurred_at", e.OccurredAt).
		Msg("ledger audit")
	return nil
}

func orNull(b json.RawMessage) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps events in a slice. Used by tests and the report command.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
