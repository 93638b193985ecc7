package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docuflow/docuflow/internal/core/domain"
)

// SettingsRepository stores the single processing settings row. Missing
// row reads fall back to defaults so a fresh database works unconfigured.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) EnsureSchema(ctx context.Context) error {
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
CREATE TABLE IF NOT EXISTS processing_settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	confidence_threshold DOUBLE PRECISION NOT NULL,
	strict_validation BOOLEAN NOT NULL,
	max_adapter_retries INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SettingsRepository) Get(ctx context.Context) (domain.ProcessingSettings, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT confidence_threshold, strict_validation, max_adapter_retries
FROM processing_settings
WHERE id = 1
`)

	var settings domain.ProcessingSettings
	err := row.Scan(&settings.ConfidenceThreshold, &settings.StrictValidation, &settings.MaxAdapterRetries)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DefaultProcessingSettings(), nil
		}
		return domain.ProcessingSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings.Normalize(), nil
}

func (r *SettingsRepository) Save(ctx context.Context, settings domain.ProcessingSettings) error {
	settings = settings.Normalize()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO processing_settings (id, confidence_threshold, strict_validation, max_adapter_retries, updated_at)
VALUES (1, $1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET confidence_threshold = EXCLUDED.confidence_threshold,
	strict_validation = EXCLUDED.strict_validation,
	max_adapter_retries = EXCLUDED.max_adapter_retries,
	updated_at = EXCLUDED.updated_at
`, settings.ConfidenceThreshold, settings.StrictValidation, settings.MaxAdapterRetries, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
