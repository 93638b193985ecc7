package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/docuflow/docuflow/internal/core/domain"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082904)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	document_id TEXT,
	action TEXT NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	details JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_document_id ON audit_log(document_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AuditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		if detailsJSON, err = json.Marshal(entry.Details); err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	var documentID any
	if entry.DocumentID != "" {
		documentID = entry.DocumentID
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_log (id, document_id, action, actor, details, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, entry.ID, documentID, string(entry.Action), entry.Actor, detailsJSON, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByDocument(ctx context.Context, documentID string, page domain.Page) ([]domain.AuditEntry, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE document_id = $1`, documentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	size := page.Size
	if size <= 0 || size > maxPageSize {
		size = 50
	}
	page.Size = size

	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, action, actor, details, created_at
FROM audit_log
WHERE document_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, documentID, size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0, size)
	for rows.Next() {
		var entry domain.AuditEntry
		var action string
		var docID sql.NullString
		var detailsRaw []byte
		if err := rows.Scan(&entry.ID, &docID, &action, &entry.Actor, &detailsRaw, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		if docID.Valid {
			entry.DocumentID = docID.String
		}
		if len(detailsRaw) > 0 {
			if err := json.Unmarshal(detailsRaw, &entry.Details); err != nil {
				return nil, 0, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		entry.Action = domain.AuditAction(action)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, total, nil
}
