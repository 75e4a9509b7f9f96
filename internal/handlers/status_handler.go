package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/jobs"
)

// StatusHandler serves health, version, privacy report and audit queries
type StatusHandler struct {
	service   *jobs.Service
	config    *common.Config
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(service *jobs.Service, config *common.Config, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		service:   service,
		config:    config,
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// HealthHandler returns liveness plus basic queue stats
// GET /api/v1/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	active, total, err := h.service.JobCounts(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count jobs for health report")
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"node_id":     h.config.Node.NodeID,
		"version":     common.GetVersion(),
		"uptime_s":    int(time.Since(h.startedAt).Seconds()),
		"queue_len":   h.service.Queue().Len(),
		"queue_cap":   h.service.Queue().Cap(),
		"active_jobs": active,
		"total_jobs":  total,
	})
}

// VersionHandler returns build information
// GET /api/v1/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// PrivacyReportHandler summarizes the node's release policy and activity
// GET /api/v1/privacy-report
func (h *StatusHandler) PrivacyReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.PrivacyReport(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build privacy report")
		WriteError(w, http.StatusInternalServerError, "Failed to build privacy report")
		return
	}
	WriteJSON(w, http.StatusOK, report)
}
