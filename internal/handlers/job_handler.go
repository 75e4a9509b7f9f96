// -----------------------------------------------------------------------
// Job handler - submission, retrieval, listing and cancellation
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/custodia/internal/jobs"
	"github.com/ternarybob/custodia/internal/models"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	service  *jobs.Service
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(service *jobs.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// SubmitJobHandler admits a new job
// POST /api/v1/jobs
func (h *JobHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req jobs.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ClientIP = clientIP(r)

	job, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		if !jobs.IsAdmissionError(err) {
			h.logger.Error().Err(err).Msg("Job submission failed")
		}
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job.View())
}

// GetJobHandler returns the client view of one job
// GET /api/v1/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	view, err := h.service.GetJobView(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// ListJobsHandler returns a paginated list of job views
// GET /api/v1/jobs?limit=50&offset=0&status=completed
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	status := models.JobStatus(r.URL.Query().Get("status"))

	views, err := h.service.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   views,
		"count":  len(views),
		"limit":  limit,
		"offset": offset,
	})
}

// CancelJobHandler cancels a queued or running job
// POST /api/v1/jobs/{id}/cancel, DELETE /api/v1/jobs/{id}
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := h.service.Cancel(r.Context(), jobID, clientIP(r)); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "Job cancelled")
}
