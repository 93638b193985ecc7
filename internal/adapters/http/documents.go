package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.ingestUC.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		r.FormValue("uploaded_by"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	filter := domain.DocumentFilter{
		Status:  domain.DocumentStatus(r.URL.Query().Get("status")),
		DocType: domain.DocType(r.URL.Query().Get("doc_type")),
		Search:  r.URL.Query().Get("search"),
		Page:    pageFromQuery(r),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeBadRequest(w, "unknown status filter")
		return
	}
	var ok bool
	if filter.DateFrom, ok = timeParam(r, "date_from"); !ok {
		writeBadRequest(w, "date_from must be RFC 3339 or YYYY-MM-DD")
		return
	}
	if filter.DateTo, ok = timeParam(r, "date_to"); !ok {
		writeBadRequest(w, "date_to must be RFC 3339 or YYYY-MM-DD")
		return
	}

	docs, total, err := rt.manageUC.ListDocuments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Document]{
		Items: docs,
		Total: total,
		Page:  filter.Page.Number,
	})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.manageUC.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type documentPatchRequest struct {
	DocType       *string        `json:"doc_type"`
	Status        *string        `json:"status"`
	ExtractedData map[string]any `json:"extracted_data"`
	ReviewedBy    *string        `json:"reviewed_by"`
}

func (rt *Router) patchDocument(w http.ResponseWriter, r *http.Request) {
	var req documentPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	patch := ports.DocumentPatch{
		ExtractedData: req.ExtractedData,
		ReviewedBy:    req.ReviewedBy,
	}
	if req.DocType != nil {
		docType := domain.DocType(*req.DocType)
		patch.DocType = &docType
	}
	if req.Status != nil {
		status := domain.DocumentStatus(*req.Status)
		patch.Status = &status
	}

	doc, err := rt.manageUC.UpdateReview(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.manageUC.DeleteDocument(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) documentAudit(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	entries, total, err := rt.manageUC.DocumentAudit(r.Context(), r.PathValue("id"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.AuditEntry]{
		Items: entries,
		Total: total,
		Page:  page.Number,
	})
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.manageUC.Reprocess(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
}

func pageFromQuery(r *http.Request) domain.Page {
	page := domain.Page{Number: 1, Size: 50}
	if n, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && n > 0 {
		page.Number = n
	}
	if s, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && s > 0 {
		page.Size = s
	}
	return page
}

func timeParam(r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	return nil, false
}
