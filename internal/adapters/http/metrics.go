package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/docuflow/docuflow/internal/core/domain"
)

func (rt *Router) dashboardMetrics(w http.ResponseWriter, r *http.Request) {
	dashboard, err := rt.manageUC.DashboardMetrics(r.Context(), sinceFromQuery(r, 30*24*time.Hour))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (rt *Router) trends(w http.ResponseWriter, r *http.Request) {
	granularity := r.URL.Query().Get("granularity")
	points, err := rt.manageUC.Trends(r.Context(), sinceFromQuery(r, 30*24*time.Hour), granularity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

func (rt *Router) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	entries, total, err := rt.manageUC.ListDeadLetters(r.Context(), pageFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.DeadLetterEntry]{
		Items: entries,
		Total: total,
		Page:  pageFromQuery(r).Number,
	})
}

func (rt *Router) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := rt.manageUC.GetSettings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (rt *Router) updateSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.ProcessingSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	saved, err := rt.manageUC.UpdateSettings(r.Context(), settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// sinceFromQuery resolves the lookback window from a "days" parameter.
func sinceFromQuery(r *http.Request, fallback time.Duration) time.Time {
	if days, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && days > 0 {
		return time.Now().UTC().AddDate(0, 0, -days)
	}
	return time.Now().UTC().Add(-fallback)
}
