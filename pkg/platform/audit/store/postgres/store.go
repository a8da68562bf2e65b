package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	audit "custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
	txcontext "custodywatch/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Schema creates the audit_entries table. Payloads are stored as raw bytes
// so the exact hashed encoding survives the round trip.
const Schema = `
	CREATE TABLE IF NOT EXISTS audit_entries (
		sequence        BIGINT PRIMARY KEY,
		action_type     TEXT NOT NULL,
		payload_hash    TEXT NOT NULL,
		prev_entry_hash TEXT NOT NULL,
		entry_hash      TEXT NOT NULL UNIQUE,
		actor_id        TEXT NOT NULL,
		timestamp       TIMESTAMPTZ NOT NULL,
		payload         BYTEA NOT NULL
	)
`

// Store implements audit.Store on a PostgreSQL table.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Migrate creates the table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.execer(ctx).ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create audit_entries: %w", err)
	}
	return nil
}

// Append inserts one entry. A sequence that already exists is a conflict.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	query := `
		INSERT INTO audit_entries (
			sequence, action_type, payload_hash, prev_entry_hash,
			entry_hash, actor_id, timestamp, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		int64(entry.Sequence),
		string(entry.ActionType),
		entry.PayloadHash,
		entry.PrevEntryHash,
		entry.EntryHash,
		entry.ActorID,
		entry.Timestamp,
		[]byte(entry.Payload),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert audit entry %d: %w", entry.Sequence, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Import writes a whole chain in one transaction. Either every entry lands or
// none does.
func (s *Store) Import(ctx context.Context, entries []audit.Entry) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		for _, e := range entries {
			if err := s.Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns all entries ordered by sequence.
func (s *Store) List(ctx context.Context) ([]audit.Entry, error) {
	query := `
		SELECT sequence, action_type, payload_hash, prev_entry_hash,
			   entry_hash, actor_id, timestamp, payload
		FROM audit_entries
		ORDER BY sequence ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListRecent returns the most recent limit entries, oldest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	query := `
		SELECT sequence, action_type, payload_hash, prev_entry_hash,
			   entry_hash, actor_id, timestamp, payload
		FROM (
			SELECT * FROM audit_entries ORDER BY sequence DESC LIMIT $1
		) recent
		ORDER BY sequence ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	entries := []audit.Entry{}
	for rows.Next() {
		var (
			entry    audit.Entry
			sequence int64
			action   string
			payload  []byte
		)
		err := rows.Scan(
			&sequence,
			&action,
			&entry.PayloadHash,
			&entry.PrevEntryHash,
			&entry.EntryHash,
			&entry.ActorID,
			&entry.Timestamp,
			&payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Sequence = uint64(sequence)
		entry.ActionType = audit.ActionType(action)
		entry.Timestamp = entry.Timestamp.UTC()
		entry.Payload = payload
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
