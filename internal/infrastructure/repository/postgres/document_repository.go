package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

const maxPageSize = 200

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	storage_path TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	file_size_bytes BIGINT NOT NULL DEFAULT 0,
	doc_type TEXT NOT NULL,
	status TEXT NOT NULL,
	extracted_data JSONB,
	field_confidences JSONB,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	processor_used TEXT NOT NULL DEFAULT '',
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	processing_error TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	generation BIGINT NOT NULL DEFAULT 1,
	uploaded_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_storage_path ON documents(storage_path);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents(doc_type);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const documentColumns = `id, storage_path, original_filename, mime_type, file_size_bytes, doc_type, status,
	extracted_data, field_confidences, confidence, processor_used, processing_time_ms, processing_error,
	retry_count, generation, uploaded_by, created_at, processed_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	dataJSON, confJSON, err := marshalExtraction(doc.ExtractedData, doc.FieldConfidences)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, storage_path, original_filename, mime_type, file_size_bytes, doc_type, status,
	extracted_data, field_confidences, confidence, processor_used, processing_time_ms, processing_error,
	retry_count, generation, uploaded_by, created_at, processed_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
`,
		doc.ID, doc.StoragePath, doc.OriginalFilename, doc.MimeType, doc.FileSizeBytes,
		string(doc.DocType), string(doc.Status), dataJSON, confJSON, doc.Confidence,
		string(doc.ProcessorUsed), doc.ProcessingTimeMS, doc.ProcessingError,
		doc.RetryCount, doc.Generation, doc.UploadedBy, doc.CreatedAt, doc.ProcessedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert document", err)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get document by id: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) GetByStoragePath(ctx context.Context, storagePath string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE storage_path = $1`, storagePath)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("storage_path=%s", storagePath))
		}
		return nil, fmt.Errorf("get document by storage path: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, int64, error) {
	where, args := documentWhere(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	size := filter.Page.Size
	if size <= 0 || size > maxPageSize {
		size = 50
	}
	page := filter.Page
	page.Size = size

	args = append(args, size, page.Offset())
	query := `SELECT ` + documentColumns + ` FROM documents` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0, size)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return out, total, nil
}

func documentWhere(filter domain.DocumentFilter) (string, []any) {
	conds := make([]string, 0, 4)
	args := make([]any, 0, 4)

	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.DocType != "" {
		add("doc_type = $%d", string(filter.DocType))
	}
	if filter.Search != "" {
		add("original_filename ILIKE $%d", "%"+filter.Search+"%")
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

// ClaimProcessing moves a pending or failed document into processing.
// The update is conditional on the expected generation so a worker holding
// a stale event from a previous reprocess cycle cannot claim the row.
func (r *DocumentRepository) ClaimProcessing(ctx context.Context, id string, generation int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, processing_error = '', updated_at = $4
WHERE id = $1 AND generation = $2 AND status IN ($5, $6)
`, id, generation, string(domain.StatusProcessing), time.Now().UTC(),
		string(domain.StatusPending), string(domain.StatusFailed))
	if err != nil {
		return false, fmt.Errorf("claim processing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim processing rows affected: %w", err)
	}
	return rows == 1, nil
}

// FinalizeAttempt writes the outcome of a processing attempt. It refuses
// rows whose generation moved on or that are no longer in processing, so a
// slow worker cannot clobber a newer attempt's result.
func (r *DocumentRepository) FinalizeAttempt(ctx context.Context, doc *domain.Document) (bool, error) {
	dataJSON, confJSON, err := marshalExtraction(doc.ExtractedData, doc.FieldConfidences)
	if err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, doc_type = $4, storage_path = $5, extracted_data = $6, field_confidences = $7,
	confidence = $8, processor_used = $9, processing_time_ms = $10, processing_error = $11,
	processed_at = $12, updated_at = $13
WHERE id = $1 AND generation = $2 AND status = $14
`, doc.ID, doc.Generation, string(doc.Status), string(doc.DocType), doc.StoragePath, dataJSON, confJSON,
		doc.Confidence, string(doc.ProcessorUsed), doc.ProcessingTimeMS, doc.ProcessingError,
		doc.ProcessedAt, time.Now().UTC(), string(domain.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("finalize attempt: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize attempt rows affected: %w", err)
	}
	return rows == 1, nil
}

// RecordFailure moves a processing document back to failed with the attempt
// error, preparing the row for a retried claim of the same generation.
func (r *DocumentRepository) RecordFailure(ctx context.Context, id string, generation int64, errMessage string, retryCount int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, processing_error = $4, retry_count = $5, updated_at = $6
WHERE id = $1 AND generation = $2 AND status = $7
`, id, generation, string(domain.StatusFailed), errMessage, retryCount, time.Now().UTC(),
		string(domain.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("record failure: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record failure rows affected: %w", err)
	}
	return rows == 1, nil
}

// Reprocess resets a terminal document to pending and bumps the generation,
// invalidating every event still in flight for the previous cycle.
func (r *DocumentRepository) Reprocess(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE documents
SET status = $2, generation = generation + 1, retry_count = 0,
	processing_error = '', updated_at = $3
WHERE id = $1 AND status IN ($4, $5, $6)
RETURNING `+documentColumns+`
`, id, string(domain.StatusPending), time.Now().UTC(),
		string(domain.StatusProcessed), string(domain.StatusNeedsReview), string(domain.StatusFailed))

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either missing or not in a terminal state; disambiguate for the caller.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, domain.WrapError(domain.ErrConflict, "reprocess document", fmt.Errorf("document %s is not in a terminal state", id))
		}
		return nil, fmt.Errorf("reprocess document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) UpdateReview(ctx context.Context, id string, patch ports.DocumentPatch) (*domain.Document, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, time.Now().UTC()}

	set := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.DocType != nil {
		set("doc_type = $%d", string(*patch.DocType))
	}
	if patch.Status != nil {
		set("status = $%d", string(*patch.Status))
	}
	if patch.ExtractedData != nil {
		dataJSON, err := json.Marshal(patch.ExtractedData)
		if err != nil {
			return nil, fmt.Errorf("marshal extracted data: %w", err)
		}
		set("extracted_data = $%d", dataJSON)
	}
	if patch.ReviewedBy != nil {
		set("uploaded_by = $%d", *patch.ReviewedBy)
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE documents
SET `+strings.Join(sets, ", ")+`
WHERE id = $1
RETURNING `+documentColumns, args...)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "update review", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("update review: %w", err)
	}
	return doc, nil
}

// SaveCorrection applies a reviewer's field corrections. Conditional on the
// generation, so corrections lost to a concurrent reprocess are reported
// instead of silently overwriting fresher data.
func (r *DocumentRepository) SaveCorrection(ctx context.Context, id string, generation int64, fields map[string]any, fieldConfidences map[string]float64, confidence float64, status domain.DocumentStatus) (bool, error) {
	dataJSON, confJSON, err := marshalExtraction(fields, fieldConfidences)
	if err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET extracted_data = $3, field_confidences = $4, confidence = $5, status = $6, processor_used = $7, updated_at = $8
WHERE id = $1 AND generation = $2
`, id, generation, dataJSON, confJSON, confidence, string(status), string(domain.ProcessorManual), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("save correction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save correction rows affected: %w", err)
	}
	return rows == 1, nil
}

// UpdateStoragePath records where a finalized document's object ended up
// after the inbox-to-complete move. Conditional on the generation so a
// relocation finishing late cannot point a reprocessed row at a stale key.
func (r *DocumentRepository) UpdateStoragePath(ctx context.Context, id string, generation int64, storagePath string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET storage_path = $3, updated_at = $4
WHERE id = $1 AND generation = $2
`, id, generation, storagePath, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update storage path: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update storage path rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *DocumentRepository) DashboardMetrics(ctx context.Context, since time.Time) (domain.DocumentMetrics, error) {
	metrics := domain.DocumentMetrics{
		ByStatus:       make(map[string]int64),
		ByType:         make(map[string]int64),
		ProcessorUsage: make(map[string]int64),
	}

	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
	COALESCE(AVG(confidence) FILTER (WHERE status IN ($2, $3)), 0),
	COALESCE(AVG(processing_time_ms) FILTER (WHERE processing_time_ms > 0), 0),
	COUNT(*) FILTER (WHERE status = $2),
	COUNT(*) FILTER (WHERE status IN ($2, $3))
FROM documents
WHERE created_at >= $1
`, since, string(domain.StatusProcessed), string(domain.StatusNeedsReview))

	var processed, terminalReviewable int64
	if err := row.Scan(&metrics.TotalDocuments, &metrics.AvgConfidence, &metrics.AvgProcessingTimeMS, &processed, &terminalReviewable); err != nil {
		return domain.DocumentMetrics{}, fmt.Errorf("document metric totals: %w", err)
	}
	if terminalReviewable > 0 {
		metrics.AutomationRate = float64(processed) / float64(terminalReviewable)
	}

	if err := r.groupCount(ctx, `SELECT status, COUNT(*) FROM documents WHERE created_at >= $1 GROUP BY status`, since, metrics.ByStatus); err != nil {
		return domain.DocumentMetrics{}, err
	}
	if err := r.groupCount(ctx, `SELECT doc_type, COUNT(*) FROM documents WHERE created_at >= $1 GROUP BY doc_type`, since, metrics.ByType); err != nil {
		return domain.DocumentMetrics{}, err
	}
	if err := r.groupCount(ctx, `SELECT processor_used, COUNT(*) FROM documents WHERE created_at >= $1 AND processor_used <> '' GROUP BY processor_used`, since, metrics.ProcessorUsage); err != nil {
		return domain.DocumentMetrics{}, err
	}
	return metrics, nil
}

func (r *DocumentRepository) groupCount(ctx context.Context, query string, since time.Time, into map[string]int64) error {
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return fmt.Errorf("group count: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan group count: %w", err)
		}
		into[key] = count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate group count: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Trends(ctx context.Context, since time.Time, granularity string) ([]domain.TrendPoint, error) {
	switch granularity {
	case "hour", "day", "week":
	default:
		granularity = "day"
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT date_trunc($2, created_at) AS bucket,
	COUNT(*),
	COUNT(*) FILTER (WHERE status = $3),
	COUNT(*) FILTER (WHERE status = $4),
	COUNT(*) FILTER (WHERE status = $5)
FROM documents
WHERE created_at >= $1
GROUP BY bucket
ORDER BY bucket
`, since, granularity,
		string(domain.StatusProcessed), string(domain.StatusNeedsReview), string(domain.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("document trends: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TrendPoint, 0)
	for rows.Next() {
		var point domain.TrendPoint
		if err := rows.Scan(&point.Bucket, &point.Documents, &point.Processed, &point.NeedsReview, &point.Failed); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		out = append(out, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend points: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var docType, status, processor string
	var dataRaw, confRaw []byte
	var processedAt sql.NullTime

	err := row.Scan(
		&doc.ID, &doc.StoragePath, &doc.OriginalFilename, &doc.MimeType, &doc.FileSizeBytes,
		&docType, &status, &dataRaw, &confRaw, &doc.Confidence,
		&processor, &doc.ProcessingTimeMS, &doc.ProcessingError,
		&doc.RetryCount, &doc.Generation, &doc.UploadedBy,
		&doc.CreatedAt, &processedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &doc.ExtractedData); err != nil {
			return nil, fmt.Errorf("unmarshal extracted data: %w", err)
		}
	}
	if len(confRaw) > 0 {
		if err := json.Unmarshal(confRaw, &doc.FieldConfidences); err != nil {
			return nil, fmt.Errorf("unmarshal field confidences: %w", err)
		}
	}
	if processedAt.Valid {
		t := processedAt.Time
		doc.ProcessedAt = &t
	}
	doc.DocType = domain.DocType(docType)
	doc.Status = domain.DocumentStatus(status)
	doc.ProcessorUsed = domain.ProcessorType(processor)
	return &doc, nil
}

func marshalExtraction(data map[string]any, confidences map[string]float64) ([]byte, []byte, error) {
	var dataJSON, confJSON []byte
	var err error
	if data != nil {
		if dataJSON, err = json.Marshal(data); err != nil {
			return nil, nil, fmt.Errorf("marshal extracted data: %w", err)
		}
	}
	if confidences != nil {
		if confJSON, err = json.Marshal(confidences); err != nil {
			return nil, nil, fmt.Errorf("marshal field confidences: %w", err)
		}
	}
	return dataJSON, confJSON, nil
}

func isUniqueViolation(err error) bool {
	// pgx surfaces the SQLSTATE in the error text when used through
	// database/sql; 23505 is unique_violation.
	return err != nil && strings.Contains(err.Error(), "23505")
}
