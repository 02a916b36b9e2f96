package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a command invocation ended.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeUnauthorized   Outcome = "unauthorized"
	OutcomeInvalid        Outcome = "invalid"
	OutcomeNoParticipants Outcome = "no_participants"
	OutcomeFailed         Outcome = "failed"
)

// CommandRecord is one audited command invocation.
type CommandRecord struct {
	ID         uuid.UUID `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	Kind       string    `json:"kind"`
	Outcome    Outcome   `json:"outcome"`
	Targets    int       `json:"targets"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall time the command took.
func (r CommandRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// EnsureID assigns a time-ordered id if the record has none.
func (r *CommandRecord) EnsureID() {
	if r.ID == uuid.Nil {
		r.ID = uuid.Must(uuid.NewV7())
	}
}

// HistoryQuery selects records for listing, newest first.
type HistoryQuery struct {
	ChatID string // empty = all chats
	Limit  int
}

// DefaultHistoryLimit applies when HistoryQuery.Limit is not positive.
const DefaultHistoryLimit = 50

func (q HistoryQuery) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return q.Limit
}

// AuditStore persists command invocations.
type AuditStore interface {
	Record(ctx context.Context, rec *CommandRecord) error
	Recent(ctx context.Context, q HistoryQuery) ([]CommandRecord, error)
	Close() error
}

// NopAuditStore discards records. Used when storage is disabled.
type NopAuditStore struct{}

func (NopAuditStore) Record(context.Context, *CommandRecord) error { return nil }

func (NopAuditStore) Recent(context.Context, HistoryQuery) ([]CommandRecord, error) {
	return nil, nil
}

func (NopAuditStore) Close() error { return nil }
