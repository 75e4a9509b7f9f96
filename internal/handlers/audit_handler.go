package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/custodia/internal/interfaces"
)

// AuditHandler exposes the audit trail to operators
type AuditHandler struct {
	audit  interfaces.AuditStorage
	logger arbor.ILogger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit interfaces.AuditStorage, logger arbor.ILogger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// ListAuditHandler returns audit rows, filtered by job when requested
// GET /api/v1/audit?job_id=...&limit=100
func (h *AuditHandler) ListAuditHandler(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")

	if jobID != "" {
		entries, err := h.audit.ListByJob(r.Context(), jobID)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to list audit entries")
			WriteError(w, http.StatusInternalServerError, "Failed to list audit entries")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"entries": entries,
			"count":   len(entries),
		})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	entries, err := h.audit.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list audit entries")
		WriteError(w, http.StatusInternalServerError, "Failed to list audit entries")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
