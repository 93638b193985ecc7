package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docuflow/docuflow/internal/core/domain"
)

type ExceptionRepository struct {
	db *sql.DB
}

func NewExceptionRepository(db *sql.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

func (r *ExceptionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082902)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS exceptions (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	category TEXT NOT NULL,
	reason TEXT NOT NULL,
	field_name TEXT NOT NULL DEFAULT '',
	expected_value TEXT NOT NULL DEFAULT '',
	actual_value TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL,
	status TEXT NOT NULL,
	auto_resolvable BOOLEAN NOT NULL DEFAULT FALSE,
	suggested_resolution JSONB,
	resolution JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exceptions_document_id ON exceptions(document_id);
CREATE INDEX IF NOT EXISTS idx_exceptions_status ON exceptions(status);
CREATE INDEX IF NOT EXISTS idx_exceptions_created_at ON exceptions(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const exceptionColumns = `id, document_id, category, reason, field_name, expected_value, actual_value,
	priority, status, auto_resolvable, suggested_resolution, resolution, created_at, updated_at`

func (r *ExceptionRepository) CreateBatch(ctx context.Context, exceptions []domain.Exception) error {
	if len(exceptions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exception batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := range exceptions {
		exc := &exceptions[i]
		var suggestedJSON []byte
		if exc.SuggestedResolution != nil {
			if suggestedJSON, err = json.Marshal(exc.SuggestedResolution); err != nil {
				return fmt.Errorf("marshal suggested resolution: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO exceptions (
	id, document_id, category, reason, field_name, expected_value, actual_value,
	priority, status, auto_resolvable, suggested_resolution, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
			exc.ID, exc.DocumentID, string(exc.Category), exc.Reason, exc.FieldName,
			exc.ExpectedValue, exc.ActualValue, string(exc.Priority), string(exc.Status),
			exc.AutoResolvable, suggestedJSON, exc.CreatedAt, exc.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert exception: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exception batch: %w", err)
	}
	return nil
}

func (r *ExceptionRepository) GetByID(ctx context.Context, id string) (*domain.Exception, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+exceptionColumns+` FROM exceptions WHERE id = $1`, id)

	exc, err := scanException(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrExceptionNotFound, "get exception", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get exception by id: %w", err)
	}
	return exc, nil
}

func (r *ExceptionRepository) List(ctx context.Context, filter domain.ExceptionFilter) ([]domain.Exception, int64, error) {
	where, args := exceptionWhere(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exceptions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count exceptions: %w", err)
	}

	size := filter.Page.Size
	if size <= 0 || size > maxPageSize {
		size = 50
	}
	page := filter.Page
	page.Size = size

	args = append(args, size, page.Offset())
	query := `SELECT ` + exceptionColumns + ` FROM exceptions` + where + fmt.Sprintf(`
ORDER BY CASE priority
	WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0
END DESC, created_at DESC
LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list exceptions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Exception, 0, size)
	for rows.Next() {
		exc, err := scanException(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan exception: %w", err)
		}
		out = append(out, *exc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate exceptions: %w", err)
	}
	return out, total, nil
}

func exceptionWhere(filter domain.ExceptionFilter) (string, []any) {
	conds := make([]string, 0, 4)
	args := make([]any, 0, 4)

	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Category != "" {
		add("category = $%d", string(filter.Category))
	}
	if filter.Priority != "" {
		add("priority = $%d", string(filter.Priority))
	}
	if filter.DocumentID != "" {
		add("document_id = $%d", filter.DocumentID)
	}
	if filter.DateFrom != nil {
		add("created_at >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add("created_at < $%d", *filter.DateTo)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *ExceptionRepository) UpdateTriage(ctx context.Context, id string, status *domain.ExceptionStatus, priority *domain.ExceptionPriority) (*domain.Exception, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, time.Now().UTC()}

	if status != nil {
		args = append(args, string(*status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if priority != nil {
		args = append(args, string(*priority))
		sets = append(sets, fmt.Sprintf("priority = $%d", len(args)))
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE exceptions
SET `+strings.Join(sets, ", ")+`
WHERE id = $1 AND status NOT IN ('resolved', 'ignored')
RETURNING `+exceptionColumns, args...)

	exc, err := scanException(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, domain.WrapError(domain.ErrConflict, "update triage", fmt.Errorf("exception %s is already closed", id))
		}
		return nil, fmt.Errorf("update triage: %w", err)
	}
	return exc, nil
}

// Finalize moves an open or in-review exception to a terminal status with
// its resolution record. A row already terminal is left untouched and
// reported via the boolean so callers can treat repeats as no-ops.
func (r *ExceptionRepository) Finalize(ctx context.Context, id string, status domain.ExceptionStatus, res domain.Resolution) (bool, error) {
	resJSON, err := json.Marshal(res)
	if err != nil {
		return false, fmt.Errorf("marshal resolution: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE exceptions
SET status = $2, resolution = $3, updated_at = $4
WHERE id = $1 AND status IN ('open', 'in_review')
`, id, string(status), resJSON, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("finalize exception: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize exception rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *ExceptionRepository) CountOpen(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM exceptions
WHERE document_id = $1 AND status IN ('open', 'in_review')
`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count open exceptions: %w", err)
	}
	return count, nil
}

func (r *ExceptionRepository) Metrics(ctx context.Context, since time.Time) (domain.ExceptionMetrics, error) {
	metrics := domain.ExceptionMetrics{
		ByStatus:   make(map[string]int64),
		ByCategory: make(map[string]int64),
		ByPriority: make(map[string]int64),
	}

	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
	COALESCE(AVG(EXTRACT(EPOCH FROM (updated_at - created_at)) / 3600.0)
		FILTER (WHERE status IN ('resolved', 'ignored')), 0),
	COUNT(*) FILTER (WHERE auto_resolvable AND status = 'resolved')
FROM exceptions
WHERE created_at >= $1
`, since)
	if err := row.Scan(&metrics.TotalExceptions, &metrics.AvgResolutionTimeHours, &metrics.AutoResolvedCount); err != nil {
		return domain.ExceptionMetrics{}, fmt.Errorf("exception metric totals: %w", err)
	}

	groups := []struct {
		column string
		into   map[string]int64
	}{
		{"status", metrics.ByStatus},
		{"category", metrics.ByCategory},
		{"priority", metrics.ByPriority},
	}
	for _, g := range groups {
		rows, err := r.db.QueryContext(ctx,
			`SELECT `+g.column+`, COUNT(*) FROM exceptions WHERE created_at >= $1 GROUP BY `+g.column, since)
		if err != nil {
			return domain.ExceptionMetrics{}, fmt.Errorf("exception group by %s: %w", g.column, err)
		}
		for rows.Next() {
			var key string
			var count int64
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return domain.ExceptionMetrics{}, fmt.Errorf("scan exception group: %w", err)
			}
			g.into[key] = count
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return domain.ExceptionMetrics{}, fmt.Errorf("iterate exception group: %w", err)
		}
		rows.Close()
	}
	return metrics, nil
}

func scanException(row rowScanner) (*domain.Exception, error) {
	var exc domain.Exception
	var category, priority, status string
	var suggestedRaw, resolutionRaw []byte

	err := row.Scan(
		&exc.ID, &exc.DocumentID, &category, &exc.Reason, &exc.FieldName,
		&exc.ExpectedValue, &exc.ActualValue, &priority, &status,
		&exc.AutoResolvable, &suggestedRaw, &resolutionRaw,
		&exc.CreatedAt, &exc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(suggestedRaw) > 0 {
		if err := json.Unmarshal(suggestedRaw, &exc.SuggestedResolution); err != nil {
			return nil, fmt.Errorf("unmarshal suggested resolution: %w", err)
		}
	}
	if len(resolutionRaw) > 0 {
		var res domain.Resolution
		if err := json.Unmarshal(resolutionRaw, &res); err != nil {
			return nil, fmt.Errorf("unmarshal resolution: %w", err)
		}
		exc.Resolution = &res
	}
	exc.Category = domain.ExceptionCategory(category)
	exc.Priority = domain.ExceptionPriority(priority)
	exc.Status = domain.ExceptionStatus(status)
	return &exc, nil
}
