// -----------------------------------------------------------------------
// Request handler - the human review queue upstream of job execution.
// Approval atomically creates and enqueues the job.
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/jobs"
	"github.com/ternarybob/custodia/internal/models"
)

// RequestHandler serves analysis request submission and review
type RequestHandler struct {
	requests interfaces.RequestStorage
	audit    interfaces.AuditStorage
	service  *jobs.Service
	nodeID   string
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(requests interfaces.RequestStorage, audit interfaces.AuditStorage, service *jobs.Service, nodeID string, logger arbor.ILogger) *RequestHandler {
	return &RequestHandler{
		requests: requests,
		audit:    audit,
		service:  service,
		nodeID:   nodeID,
		validate: validator.New(),
		logger:   logger,
	}
}

type createRequestBody struct {
	Title         string                 `json:"title" validate:"required"`
	Description   string                 `json:"description"`
	RequesterName string                 `json:"requester_name" validate:"required"`
	RequesterNode string                 `json:"requester_node"`
	CatalogID     string                 `json:"catalog_id" validate:"required"`
	ScriptKind    string                 `json:"script_kind" validate:"required"`
	ScriptContent string                 `json:"script_content" validate:"required"`
	Parameters    map[string]interface{} `json:"parameters,omitempty"`
}

// CreateRequestHandler files a new analysis request for review
// POST /api/v1/requests
func (h *RequestHandler) CreateRequestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&body); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := &models.AnalysisRequest{
		ID:            common.NewRequestID(),
		Title:         body.Title,
		Description:   body.Description,
		RequesterName: body.RequesterName,
		RequesterNode: body.RequesterNode,
		CatalogID:     body.CatalogID,
		ScriptKind:    models.ScriptKind(body.ScriptKind),
		ScriptContent: body.ScriptContent,
		Parameters:    body.Parameters,
		Status:        models.RequestStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.requests.StoreRequest(r.Context(), req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to store analysis request")
		WriteError(w, http.StatusInternalServerError, "Failed to store request")
		return
	}
	WriteJSON(w, http.StatusCreated, req)
}

// ListRequestsHandler returns requests, optionally filtered by status
// GET /api/v1/requests?status=pending
func (h *RequestHandler) ListRequestsHandler(w http.ResponseWriter, r *http.Request) {
	status := models.RequestStatus(r.URL.Query().Get("status"))
	rows, err := h.requests.ListRequests(r.Context(), status, 100)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list requests")
		WriteError(w, http.StatusInternalServerError, "Failed to list requests")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"requests": rows,
		"count":    len(rows),
	})
}

// GetRequestHandler returns one request
// GET /api/v1/requests/{id}
func (h *RequestHandler) GetRequestHandler(w http.ResponseWriter, r *http.Request, requestID string) {
	req, err := h.requests.GetRequest(r.Context(), requestID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

type reviewRequestBody struct {
	Note string `json:"note"`
}

// ApproveRequestHandler approves a pending request, admitting its job.
// Review state and job creation move together: the request is only marked
// approved after the job is safely queued.
// POST /api/v1/requests/{id}/approve
func (h *RequestHandler) ApproveRequestHandler(w http.ResponseWriter, r *http.Request, requestID string) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body reviewRequestBody
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	req, err := h.requests.GetRequest(r.Context(), requestID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if req.Status != models.RequestStatusPending {
		WriteError(w, http.StatusConflict, "Request already reviewed")
		return
	}

	job, err := h.service.Submit(r.Context(), &jobs.SubmitRequest{
		ScriptKind:        string(req.ScriptKind),
		ScriptContent:     req.ScriptContent,
		CatalogID:         req.CatalogID,
		Parameters:        req.Parameters,
		RequesterNodeID:   req.RequesterNode,
		AnalysisRequestID: req.ID,
		ClientIP:          clientIP(r),
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	if err := h.requests.SetReviewed(r.Context(), requestID, models.RequestStatusApproved, body.Note, job.ID); err != nil {
		// The job is already queued; surface the conflict but keep it
		h.logger.Error().Err(err).Str("request_id", requestID).Str("job_id", job.ID).Msg("Request review lost a race after job admission")
		WriteServiceError(w, err)
		return
	}
	h.auditReview(r, models.AuditRequestApproved, requestID, job.ID, body.Note)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": requestID,
		"status":     models.RequestStatusApproved,
		"job_id":     job.ID,
	})
}

// DenyRequestHandler denies a pending request
// POST /api/v1/requests/{id}/deny
func (h *RequestHandler) DenyRequestHandler(w http.ResponseWriter, r *http.Request, requestID string) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body reviewRequestBody
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	if err := h.requests.SetReviewed(r.Context(), requestID, models.RequestStatusDenied, body.Note, ""); err != nil {
		WriteServiceError(w, err)
		return
	}
	h.auditReview(r, models.AuditRequestDenied, requestID, "", body.Note)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": requestID,
		"status":     models.RequestStatusDenied,
	})
}

// auditReview records the review decision; jobID is empty on deny
func (h *RequestHandler) auditReview(r *http.Request, action models.AuditAction, requestID string, jobID string, note string) {
	entry := &models.AuditEntry{
		Timestamp:    time.Now().UTC(),
		Action:       action,
		SubjectJobID: jobID,
		NodeID:       h.nodeID,
		IP:           clientIP(r),
		Details: map[string]interface{}{
			"request_id": requestID,
			"note":       note,
		},
	}
	if err := h.audit.Append(r.Context(), entry); err != nil {
		h.logger.Error().Err(err).Str("request_id", requestID).Msg("Failed to write audit entry for request review")
	}
}
