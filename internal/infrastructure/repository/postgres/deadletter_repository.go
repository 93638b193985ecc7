package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/docuflow/docuflow/internal/core/domain"
)

type DeadLetterRepository struct {
	db *sql.DB
}

func NewDeadLetterRepository(db *sql.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082903)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS dead_letters (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	event JSONB NOT NULL,
	attempts INTEGER NOT NULL,
	last_error TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dead_letters_created_at ON dead_letters(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DeadLetterRepository) Create(ctx context.Context, entry *domain.DeadLetterEntry) error {
	eventJSON, err := json.Marshal(entry.Event)
	if err != nil {
		return fmt.Errorf("marshal dead letter event: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO dead_letters (id, document_id, storage_path, event, attempts, last_error, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, entry.ID, entry.DocumentID, entry.StoragePath, eventJSON, entry.Attempts, entry.LastError, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (r *DeadLetterRepository) List(ctx context.Context, page domain.Page) ([]domain.DeadLetterEntry, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dead letters: %w", err)
	}

	size := page.Size
	if size <= 0 || size > maxPageSize {
		size = 50
	}
	page.Size = size

	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, storage_path, event, attempts, last_error, created_at
FROM dead_letters
ORDER BY created_at DESC
LIMIT $1 OFFSET $2
`, size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DeadLetterEntry, 0, size)
	for rows.Next() {
		var entry domain.DeadLetterEntry
		var eventRaw []byte
		if err := rows.Scan(&entry.ID, &entry.DocumentID, &entry.StoragePath, &eventRaw,
			&entry.Attempts, &entry.LastError, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan dead letter: %w", err)
		}
		if err := json.Unmarshal(eventRaw, &entry.Event); err != nil {
			return nil, 0, fmt.Errorf("unmarshal dead letter event: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate dead letters: %w", err)
	}
	return out, total, nil
}
