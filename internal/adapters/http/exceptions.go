package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

func (rt *Router) listExceptions(w http.ResponseWriter, r *http.Request) {
	filter := domain.ExceptionFilter{
		Status:     domain.ExceptionStatus(r.URL.Query().Get("status")),
		Category:   domain.ExceptionCategory(r.URL.Query().Get("category")),
		Priority:   domain.ExceptionPriority(r.URL.Query().Get("priority")),
		DocumentID: r.URL.Query().Get("document_id"),
		Page:       pageFromQuery(r),
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

	exceptions, total, err := rt.manageUC.ListExceptions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Exception]{
		Items: exceptions,
		Total: total,
		Page:  filter.Page.Number,
	})
}

func (rt *Router) getException(w http.ResponseWriter, r *http.Request) {
	exc, err := rt.manageUC.GetException(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exc)
}

type triageRequest struct {
	Status   *string `json:"status"`
	Priority *string `json:"priority"`
}

func (rt *Router) triageException(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.Status == nil && req.Priority == nil {
		writeBadRequest(w, "status or priority is required")
		return
	}

	var status *domain.ExceptionStatus
	if req.Status != nil {
		s := domain.ExceptionStatus(*req.Status)
		status = &s
	}
	var priority *domain.ExceptionPriority
	if req.Priority != nil {
		p := domain.ExceptionPriority(*req.Priority)
		if p.Rank() == 0 {
			writeBadRequest(w, "unknown priority")
			return
		}
		priority = &p
	}

	exc, err := rt.manageUC.TriageException(r.Context(), r.PathValue("id"), status, priority)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exc)
}

type resolveRequest struct {
	CorrectedValue *string `json:"corrected_value"`
	Notes          string  `json:"notes"`
	ResolvedBy     string  `json:"resolved_by"`
}

func (rt *Router) resolveException(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if strings.TrimSpace(req.ResolvedBy) == "" {
		writeBadRequest(w, "resolved_by is required")
		return
	}

	exc, err := rt.resolveUC.Resolve(r.Context(), r.PathValue("id"), ports.ResolveRequest{
		CorrectedValue: req.CorrectedValue,
		Notes:          req.Notes,
		ResolvedBy:     req.ResolvedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exc)
}

type ignoreRequest struct {
	Reason     string `json:"reason"`
	ResolvedBy string `json:"resolved_by"`
}

func (rt *Router) ignoreException(w http.ResponseWriter, r *http.Request) {
	var req ignoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if strings.TrimSpace(req.ResolvedBy) == "" {
		writeBadRequest(w, "resolved_by is required")
		return
	}

	exc, err := rt.resolveUC.Ignore(r.Context(), r.PathValue("id"), req.Reason, req.ResolvedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exc)
}

type bulkResolveRequest struct {
	ExceptionIDs []string `json:"exception_ids"`
	Notes        string   `json:"notes"`
	ResolvedBy   string   `json:"resolved_by"`
}

func (rt *Router) bulkResolveExceptions(w http.ResponseWriter, r *http.Request) {
	var req bulkResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if len(req.ExceptionIDs) == 0 {
		writeBadRequest(w, "exception_ids is required")
		return
	}
	if strings.TrimSpace(req.ResolvedBy) == "" {
		writeBadRequest(w, "resolved_by is required")
		return
	}

	result, err := rt.resolveUC.BulkResolve(r.Context(), req.ExceptionIDs, req.Notes, req.ResolvedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
