package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgxpool.Pool the Postgres store uses.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

var _ DBTX = (*pgxpool.Pool)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sheetdesk_workbooks (
	key        TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	size_bytes INTEGER NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sheetdesk_audit (
	id             UUID PRIMARY KEY,
	action         TEXT NOT NULL,
	severity       TEXT NOT NULL,
	session_id     TEXT NOT NULL,
	file_name      TEXT,
	sheet_name     TEXT,
	new_sheet_name TEXT,
	row_index      INTEGER,
	column_name    TEXT,
	old_value      TEXT,
	new_value      TEXT,
	ip_address     TEXT,
	user_agent     TEXT,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS sheetdesk_audit_session_idx ON sheetdesk_audit (session_id, created_at);
`

// PostgresStore keeps workbooks and audit entries in Postgres.
type PostgresStore struct {
	db DBTX
}

var (
	_ core.Store     = (*PostgresStore)(nil)
	_ core.AuditSink = (*PostgresStore)(nil)
)

// NewPostgresStore creates a store over db. Call EnsureSchema before use.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the store's tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Save replaces the workbook stored under key in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO sheetdesk_workbooks (key, data, size_bytes)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE
			SET data = EXCLUDED.data,
			    size_bytes = EXCLUDED.size_bytes,
			    version = sheetdesk_workbooks.version + 1,
			    updated_at = now()`,
			key, data, len(data),
		)
		if err != nil {
			return fmt.Errorf("upsert workbook: %w", err)
		}
		return nil
	})
}

// Load returns the stored workbook, or core.ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM sheetdesk_workbooks WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load workbook: %w", err)
	}
	return data, nil
}

// Delete removes the stored workbook, or returns core.ErrNotFound.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM sheetdesk_workbooks WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete workbook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Append inserts an audit entry.
func (s *PostgresStore) Append(ctx context.Context, e core.AuditEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sheetdesk_audit (
			id, action, severity, session_id, file_name, sheet_name, new_sheet_name,
			row_index, column_name, old_value, new_value, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		toPgUUID(e.ID),
		string(e.Action),
		string(e.Severity),
		e.SessionID,
		toPgText(e.FileName),
		toPgText(e.Sheet),
		toPgText(e.NewSheet),
		toPgInt4(e.Row),
		toPgText(e.Column),
		toPgText(e.OldValue),
		toPgText(e.NewValue),
		toPgText(e.IPAddress),
		toPgText(e.UserAgent),
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgInt4(i *int) pgtype.Int4 {
	if i == nil {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(*i), Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		parsed = uuid.New()
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}
