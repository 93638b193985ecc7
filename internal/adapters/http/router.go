package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
	"github.com/docuflow/docuflow/internal/core/usecase"
)

// DocumentManager serves the read and review surface of the API.
type DocumentManager interface {
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, int64, error)
	UpdateReview(ctx context.Context, id string, patch ports.DocumentPatch) (*domain.Document, error)
	Reprocess(ctx context.Context, id string) (*domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	DocumentAudit(ctx context.Context, id string, page domain.Page) ([]domain.AuditEntry, int64, error)

	GetException(ctx context.Context, id string) (*domain.Exception, error)
	ListExceptions(ctx context.Context, filter domain.ExceptionFilter) ([]domain.Exception, int64, error)
	TriageException(ctx context.Context, id string, status *domain.ExceptionStatus, priority *domain.ExceptionPriority) (*domain.Exception, error)

	ListDeadLetters(ctx context.Context, page domain.Page) ([]domain.DeadLetterEntry, int64, error)
	DashboardMetrics(ctx context.Context, since time.Time) (usecase.Dashboard, error)
	Trends(ctx context.Context, since time.Time, granularity string) ([]domain.TrendPoint, error)
	GetSettings(ctx context.Context) (domain.ProcessingSettings, error)
	UpdateSettings(ctx context.Context, settings domain.ProcessingSettings) (domain.ProcessingSettings, error)
}

type Router struct {
	ingestUC  ports.DocumentIngestor
	manageUC  DocumentManager
	resolveUC ports.ExceptionResolver

	maxUploadBytes int64
}

type RouterOptions struct {
	MaxUploadBytes int64
}

func NewRouter(
	ingestUC ports.DocumentIngestor,
	manageUC DocumentManager,
	resolveUC ports.ExceptionResolver,
	options RouterOptions,
) *Router {
	maxUpload := options.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	return &Router{
		ingestUC:       ingestUC,
		manageUC:       manageUC,
		resolveUC:      resolveUC,
		maxUploadBytes: maxUpload,
	}
}

// TrafficControl bundles the request throttling knobs applied in front of
// the API handlers.
type TrafficControl struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
	QueueTimeout   time.Duration
}

func (rt *Router) Handler(traffic TrafficControl) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/documents/upload", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("PATCH /v1/documents/{id}", rt.patchDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/documents/{id}/reprocess", rt.reprocessDocument)
	mux.HandleFunc("GET /v1/documents/{id}/audit", rt.documentAudit)

	mux.HandleFunc("GET /v1/exceptions", rt.listExceptions)
	mux.HandleFunc("GET /v1/exceptions/{id}", rt.getException)
	mux.HandleFunc("PATCH /v1/exceptions/{id}", rt.triageException)
	mux.HandleFunc("POST /v1/exceptions/{id}/resolve", rt.resolveException)
	mux.HandleFunc("POST /v1/exceptions/{id}/ignore", rt.ignoreException)
	mux.HandleFunc("POST /v1/exceptions/bulk-resolve", rt.bulkResolveExceptions)

	mux.HandleFunc("GET /v1/metrics/dashboard", rt.dashboardMetrics)
	mux.HandleFunc("GET /v1/metrics/trends", rt.trends)
	mux.HandleFunc("GET /v1/deadletters", rt.listDeadLetters)

	mux.HandleFunc("GET /v1/settings", rt.getSettings)
	mux.HandleFunc("PUT /v1/settings", rt.updateSettings)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, traffic.MaxConcurrent, traffic.QueueTimeout)
	handler = rateLimitMiddleware(handler, traffic.RateLimitRPS, traffic.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}
