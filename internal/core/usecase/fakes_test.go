package usecase

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

type docRepoFake struct {
	mu     sync.Mutex
	docs   map[string]*domain.Document
	byPath map[string]string

	createErr      error
	claimDenied    bool
	finalizeDenied bool
	finalizeErrs   []error
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{
		docs:   make(map[string]*domain.Document),
		byPath: make(map[string]string),
	}
	for _, d := range docs {
		copyDoc := *d
		f.docs[d.ID] = &copyDoc
		f.byPath[d.StoragePath] = d.ID
	}
	return f
}

func (f *docRepoFake) get(id string) *domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		copyDoc := *d
		return &copyDoc
	}
	return nil
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byPath[doc.StoragePath]; ok {
		return domain.WrapError(domain.ErrConflict, "insert document", domain.ErrConflict)
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	f.byPath[doc.StoragePath] = doc.ID
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if d := f.get(id); d != nil {
		return d, nil
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", domain.ErrDocumentNotFound)
}

func (f *docRepoFake) GetByStoragePath(_ context.Context, path string) (*domain.Document, error) {
	f.mu.Lock()
	id, ok := f.byPath[path]
	f.mu.Unlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", domain.ErrDocumentNotFound)
	}
	return f.get(id), nil
}

func (f *docRepoFake) List(_ context.Context, _ domain.DocumentFilter) ([]domain.Document, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, *d)
	}
	return out, int64(len(out)), nil
}

func (f *docRepoFake) ClaimProcessing(_ context.Context, id string, generation int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimDenied {
		return false, nil
	}
	d, ok := f.docs[id]
	if !ok || d.Generation != generation {
		return false, nil
	}
	if d.Status != domain.StatusPending && d.Status != domain.StatusFailed {
		return false, nil
	}
	d.Status = domain.StatusProcessing
	return true, nil
}

func (f *docRepoFake) FinalizeAttempt(_ context.Context, doc *domain.Document) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.finalizeErrs) > 0 {
		err := f.finalizeErrs[0]
		f.finalizeErrs = f.finalizeErrs[1:]
		if err != nil {
			return false, err
		}
	}
	if f.finalizeDenied {
		return false, nil
	}
	d, ok := f.docs[doc.ID]
	if !ok || d.Generation != doc.Generation || d.Status != domain.StatusProcessing {
		return false, nil
	}
	delete(f.byPath, d.StoragePath)
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	f.byPath[copyDoc.StoragePath] = doc.ID
	return true, nil
}

func (f *docRepoFake) RecordFailure(_ context.Context, id string, generation int64, errMessage string, retryCount int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.Generation != generation || d.Status != domain.StatusProcessing {
		return false, nil
	}
	d.Status = domain.StatusFailed
	d.ProcessingError = errMessage
	d.RetryCount = retryCount
	return true, nil
}

func (f *docRepoFake) Reprocess(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", domain.ErrDocumentNotFound)
	}
	if !d.Status.Terminal() {
		return nil, domain.WrapError(domain.ErrConflict, "reprocess document", domain.ErrConflict)
	}
	d.Status = domain.StatusPending
	d.Generation++
	d.RetryCount = 0
	copyDoc := *d
	return &copyDoc, nil
}

func (f *docRepoFake) UpdateReview(_ context.Context, id string, patch ports.DocumentPatch) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", domain.ErrDocumentNotFound)
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	if patch.DocType != nil {
		d.DocType = *patch.DocType
	}
	if patch.ExtractedData != nil {
		d.ExtractedData = patch.ExtractedData
	}
	copyDoc := *d
	return &copyDoc, nil
}

func (f *docRepoFake) SaveCorrection(_ context.Context, id string, generation int64, fields map[string]any, fieldConfidences map[string]float64, confidence float64, status domain.DocumentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.Generation != generation {
		return false, nil
	}
	d.ExtractedData = fields
	d.FieldConfidences = fieldConfidences
	d.Confidence = confidence
	d.Status = status
	d.ProcessorUsed = domain.ProcessorManual
	return true, nil
}

func (f *docRepoFake) UpdateStoragePath(_ context.Context, id string, generation int64, storagePath string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.Generation != generation {
		return false, nil
	}
	delete(f.byPath, d.StoragePath)
	d.StoragePath = storagePath
	f.byPath[storagePath] = id
	return true, nil
}

func (f *docRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", domain.ErrDocumentNotFound)
	}
	delete(f.byPath, d.StoragePath)
	delete(f.docs, id)
	return nil
}

func (f *docRepoFake) DashboardMetrics(context.Context, time.Time) (domain.DocumentMetrics, error) {
	return domain.DocumentMetrics{}, nil
}

func (f *docRepoFake) Trends(context.Context, time.Time, string) ([]domain.TrendPoint, error) {
	return nil, nil
}

type excRepoFake struct {
	mu      sync.Mutex
	created []domain.Exception
}

func (f *excRepoFake) CreateBatch(_ context.Context, exceptions []domain.Exception) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, exceptions...)
	return nil
}

func (f *excRepoFake) GetByID(_ context.Context, id string) (*domain.Exception, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.created {
		if f.created[i].ID == id {
			copyExc := f.created[i]
			return &copyExc, nil
		}
	}
	return nil, domain.WrapError(domain.ErrExceptionNotFound, "get exception", domain.ErrExceptionNotFound)
}

func (f *excRepoFake) List(context.Context, domain.ExceptionFilter) ([]domain.Exception, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Exception(nil), f.created...), int64(len(f.created)), nil
}

func (f *excRepoFake) UpdateTriage(_ context.Context, id string, status *domain.ExceptionStatus, priority *domain.ExceptionPriority) (*domain.Exception, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.created {
		if f.created[i].ID != id {
			continue
		}
		if f.created[i].Status.Terminal() {
			return nil, domain.WrapError(domain.ErrConflict, "update triage", domain.ErrConflict)
		}
		if status != nil {
			f.created[i].Status = *status
		}
		if priority != nil {
			f.created[i].Priority = *priority
		}
		copyExc := f.created[i]
		return &copyExc, nil
	}
	return nil, domain.WrapError(domain.ErrExceptionNotFound, "update triage", domain.ErrExceptionNotFound)
}

func (f *excRepoFake) Finalize(_ context.Context, id string, status domain.ExceptionStatus, res domain.Resolution) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.created {
		if f.created[i].ID != id {
			continue
		}
		if f.created[i].Status.Terminal() {
			return false, nil
		}
		f.created[i].Status = status
		resCopy := res
		f.created[i].Resolution = &resCopy
		return true, nil
	}
	return false, nil
}

func (f *excRepoFake) CountOpen(_ context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for i := range f.created {
		if f.created[i].DocumentID == documentID && !f.created[i].Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (f *excRepoFake) Metrics(context.Context, time.Time) (domain.ExceptionMetrics, error) {
	return domain.ExceptionMetrics{}, nil
}

type deadLetterFake struct {
	mu      sync.Mutex
	entries []domain.DeadLetterEntry
}

func (f *deadLetterFake) Create(_ context.Context, entry *domain.DeadLetterEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *deadLetterFake) List(context.Context, domain.Page) ([]domain.DeadLetterEntry, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DeadLetterEntry(nil), f.entries...), int64(len(f.entries)), nil
}

type settingsFake struct {
	settings domain.ProcessingSettings
}

func (f *settingsFake) Get(context.Context) (domain.ProcessingSettings, error) {
	if f.settings == (domain.ProcessingSettings{}) {
		return domain.DefaultProcessingSettings(), nil
	}
	return f.settings, nil
}

func (f *settingsFake) Save(_ context.Context, s domain.ProcessingSettings) error {
	f.settings = s
	return nil
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	moves   []string
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = content
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[key]
	if !ok {
		return nil, domain.TransientError("open object", domain.ErrTemporary)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (f *storageFake) Move(_ context.Context, key, toPrefix string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[key]
	if !ok {
		return "", domain.ErrDocumentNotFound
	}
	newKey := toPrefix + "/" + lastSegment(key)
	delete(f.objects, key)
	f.objects[newKey] = content
	f.moves = append(f.moves, key+" -> "+newKey)
	return newKey, nil
}

func lastSegment(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}

func (f *storageFake) ListInbox(context.Context) ([]domain.StorageNotification, error) {
	return nil, nil
}

type queueFake struct {
	mu         sync.Mutex
	published  []domain.IngestionEvent
	delayed    []domain.IngestionEvent
	delays     []time.Duration
	processed  []domain.ProcessedEvent
	deadLetter []domain.DeadLetterEntry
	publishErr error
}

func (f *queueFake) PublishIngestion(_ context.Context, event domain.IngestionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, event)
	return nil
}

func (f *queueFake) PublishIngestionAfter(_ context.Context, event domain.IngestionEvent, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delayed = append(f.delayed, event)
	f.delays = append(f.delays, delay)
	return nil
}

func (f *queueFake) SubscribeIngestion(context.Context, int, func(context.Context, domain.IngestionEvent) error) error {
	return nil
}

func (f *queueFake) PublishProcessed(_ context.Context, event domain.ProcessedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, event)
	return nil
}

func (f *queueFake) PublishDeadLetter(_ context.Context, entry domain.DeadLetterEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetter = append(f.deadLetter, entry)
	return nil
}

type auditRepoFake struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (f *auditRepoFake) Record(_ context.Context, entry domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *auditRepoFake) ListByDocument(_ context.Context, documentID string, _ domain.Page) ([]domain.AuditEntry, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AuditEntry, 0)
	for _, e := range f.entries {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (f *auditRepoFake) actions() []domain.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type adapterFake struct {
	name       domain.ProcessorType
	extraction domain.Extraction
	errs       []error
	calls      int
}

func (f *adapterFake) Name() domain.ProcessorType { return f.name }

func (f *adapterFake) Extract(context.Context, []byte, domain.DocType) (domain.Extraction, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return domain.Extraction{}, err
		}
	}
	extraction := f.extraction
	extraction.Processor = f.name
	return extraction, nil
}
