// Package sqlite implements the audit store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/groupcast/groupcast/internal/store"
	"github.com/groupcast/groupcast/internal/store/migrations"
)

// AuditStore implements store.AuditStore backed by SQLite.
type AuditStore struct {
	db *sql.DB
}

// Open migrates the database at path to the latest schema and opens it.
func Open(path string) (*AuditStore, error) {
	v, err := migrations.Up(store.DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	slog.Debug("sqlite schema ready", "path", path, "version", v)

	db, err := migrations.OpenDB(store.DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent commands.
	db.SetMaxOpenConns(1)
	return &AuditStore{db: db}, nil
}

func (s *AuditStore) Record(ctx context.Context, rec *store.CommandRecord) error {
	rec.EnsureID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_audit
		   (id, chat_id, sender_id, kind, outcome, targets, sent, failed, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.ChatID, rec.SenderID, rec.Kind, string(rec.Outcome),
		rec.Targets, rec.Sent, rec.Failed, rec.Error,
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert command record: %w", err)
	}
	return nil
}

func (s *AuditStore) Recent(ctx context.Context, q store.HistoryQuery) ([]store.CommandRecord, error) {
	query := `SELECT id, chat_id, sender_id, kind, outcome, targets, sent, failed, error, started_at, finished_at
		FROM command_audit`
	args := []any{}
	if q.ChatID != "" {
		query += ` WHERE chat_id = ?`
		args = append(args, q.ChatID)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, q.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query command records: %w", err)
	}
	defer rows.Close()

	var out []store.CommandRecord
	for rows.Next() {
		var (
			rec               store.CommandRecord
			outcome           string
			started, finished int64
		)
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.SenderID, &rec.Kind, &outcome,
			&rec.Targets, &rec.Sent, &rec.Failed, &rec.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan command record: %w", err)
		}
		rec.Outcome = store.Outcome(outcome)
		rec.StartedAt = time.UnixMilli(started)
		rec.FinishedAt = time.UnixMilli(finished)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *AuditStore) Close() error {
	return s.db.Close()
}
