package pg

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/groupcast/groupcast/internal/store"
	"github.com/groupcast/groupcast/internal/store/migrations"
)

// AuditStore implements store.AuditStore backed by Postgres.
type AuditStore struct {
	db *sql.DB
}

// Open migrates the database to the latest schema and opens a pool.
func Open(dsn string) (*AuditStore, error) {
	v, err := migrations.Up(store.DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	slog.Debug("postgres schema ready", "version", v)

	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	return &AuditStore{db: db}, nil
}

// OpenDB opens and pings a pgx-backed database/sql pool.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := migrations.OpenDB(store.DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *AuditStore) Record(ctx context.Context, rec *store.CommandRecord) error {
	rec.EnsureID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_audit
		   (id, chat_id, sender_id, kind, outcome, targets, sent, failed, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.ChatID, rec.SenderID, rec.Kind, string(rec.Outcome),
		rec.Targets, rec.Sent, rec.Failed, rec.Error,
		rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert command record: %w", err)
	}
	return nil
}

func (s *AuditStore) Recent(ctx context.Context, q store.HistoryQuery) ([]store.CommandRecord, error) {
	query := `SELECT id, chat_id, sender_id, kind, outcome, targets, sent, failed, error, started_at, finished_at
		FROM command_audit`
	var args []any
	if q.ChatID != "" {
		args = append(args, q.ChatID)
		query += ` WHERE chat_id = $` + strconv.Itoa(len(args))
	}
	args = append(args, q.EffectiveLimit())
	query += ` ORDER BY started_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query command records: %w", err)
	}
	defer rows.Close()

	var out []store.CommandRecord
	for rows.Next() {
		var (
			rec     store.CommandRecord
			outcome string
		)
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.SenderID, &rec.Kind, &outcome,
			&rec.Targets, &rec.Sent, &rec.Failed, &rec.Error, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan command record: %w", err)
		}
		rec.Outcome = store.Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *AuditStore) Close() error {
	return s.db.Close()
}
