// -----------------------------------------------------------------------
// Job service - admission, cancellation and the client-facing job view.
// Owns the policy gate projection applied to everything that leaves
// the node.
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/custodia/internal/catalog"
	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
	"github.com/ternarybob/custodia/internal/policy"
	"github.com/ternarybob/custodia/internal/sandbox"
)

const recoveredReason = "job interrupted by node restart"

// Service coordinates admission, execution and result release for jobs
type Service struct {
	config    *common.Config
	storage   interfaces.StorageManager
	resolver  *catalog.Resolver
	validator *policy.Validator
	gate      *policy.Gate
	builder   *sandbox.WorkspaceBuilder
	runner    interfaces.Runner
	queue     *Queue

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// NewService wires the job service
func NewService(cfg *common.Config, storage interfaces.StorageManager, resolver *catalog.Resolver, runner interfaces.Runner, builder *sandbox.WorkspaceBuilder) *Service {
	return &Service{
		config:    cfg,
		storage:   storage,
		resolver:  resolver,
		validator: policy.NewValidator(&cfg.Policy),
		gate:      policy.NewGate(&cfg.Policy),
		builder:   builder,
		runner:    runner,
		queue:     NewQueue(cfg.Queue.Capacity),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Queue exposes the admission queue to the worker pool
func (s *Service) Queue() *Queue {
	return s.queue
}

// SubmitRequest carries one job submission through admission
type SubmitRequest struct {
	TargetNodeID      string                 `json:"target_node_id,omitempty"`
	ScriptKind        string                 `json:"script_kind" validate:"required"`
	ScriptContent     string                 `json:"script_content" validate:"required"`
	CatalogID         string                 `json:"catalog_id" validate:"required"`
	Parameters        map[string]interface{} `json:"parameters,omitempty"`
	Filters           map[string]interface{} `json:"filters,omitempty"`
	UploadedFileIDs   []string               `json:"uploaded_file_ids,omitempty"`
	RequesterNodeID   string                 `json:"requester_node_id,omitempty"`
	AnalysisRequestID string                 `json:"-"`
	ClientIP          string                 `json:"-"`
}

// Submit admits one job: rate limit, kind allow-list, catalog resolution,
// static script validation, persistence and enqueue, plus an audit row.
// The script never executes during admission.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*models.Job, error) {
	logger := common.GetLogger()

	if !s.allowSubmission(req.requesterKey()) {
		return nil, fmt.Errorf("requester %s: %w", req.requesterKey(), common.ErrRateLimited)
	}

	// Jobs execute locally; a submission addressed to any other node is
	// not served here
	if req.TargetNodeID != "" && req.TargetNodeID != s.config.Node.NodeID {
		return nil, fmt.Errorf("target node %s not served by this node: %w", req.TargetNodeID, common.ErrNotFound)
	}

	kind := models.ScriptKind(strings.ToLower(req.ScriptKind))
	if !s.config.IsKindAllowed(string(kind)) {
		return nil, fmt.Errorf("kind %s: %w", req.ScriptKind, common.ErrKindNotAllowed)
	}

	cat, err := s.resolver.GetByIDOrName(req.CatalogID)
	if err != nil {
		return nil, err
	}

	for _, fileID := range req.UploadedFileIDs {
		if _, err := s.storage.UploadStorage().GetFile(ctx, fileID); err != nil {
			return nil, err
		}
	}

	// Static validation runs here only to record the risk in the audit
	// trail. Enforcement happens in the worker, so a blocked script still
	// leaves a failed job row naming the patterns.
	validation := s.validator.Validate(kind, req.ScriptContent)
	if !validation.Safe {
		logger.Warn().
			Str("catalog", cat.ID).
			Strs("blocked_patterns", validation.BlockedPatterns).
			Msg("Script flagged by static policy, will fail before execution")
	}

	job := &models.Job{
		ID:                common.NewJobID(),
		ScriptKind:        kind,
		ScriptContent:     req.ScriptContent,
		ScriptHash:        models.ComputeScriptHash(req.ScriptContent),
		CatalogID:         cat.ID,
		Parameters:        req.Parameters,
		Filters:           req.Filters,
		UploadedFileIDs:   req.UploadedFileIDs,
		RequesterNodeID:   req.RequesterNodeID,
		ExecutorNodeID:    s.config.Node.NodeID,
		AnalysisRequestID: req.AnalysisRequestID,
		SubmittedAt:       time.Now().UTC(),
		Status:            models.JobStatusQueued,
	}

	if err := s.storage.JobStorage().InsertJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(job.ID); err != nil {
		if delErr := s.storage.JobStorage().DeleteJob(ctx, job.ID); delErr != nil {
			logger.Error().Err(delErr).Str("job_id", job.ID).Msg("Failed to roll back job after full queue")
		}
		return nil, err
	}

	s.audit(ctx, models.AuditJobSubmitted, job.ID, req.ClientIP, map[string]interface{}{
		"script_kind":      string(kind),
		"script_hash":      job.ScriptHash,
		"catalog_id":       cat.ID,
		"risk":             string(validation.Risk),
		"warnings":         validation.Warnings,
		"blocked_patterns": validation.BlockedPatterns,
	})

	logger.Info().
		Str("job_id", job.ID).
		Str("catalog", cat.ID).
		Str("kind", string(kind)).
		Int("queue_len", s.queue.Len()).
		Msg("Job admitted")
	return job, nil
}

// Cancel moves a queued or running job to cancelled. A running job's
// sandbox is stopped; a queued one is skipped by the worker on dequeue.
func (s *Service) Cancel(ctx context.Context, jobID string, clientIP string) error {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	wasRunning := job.Status == models.JobStatusRunning
	if err := s.storage.JobStorage().SetCancelled(ctx, jobID); err != nil {
		return err
	}
	if wasRunning {
		if err := s.runner.Stop(ctx, jobID); err != nil {
			common.GetLogger().Warn().Err(err).Str("job_id", jobID).Msg("Failed to stop sandbox for cancelled job")
		}
	}

	s.audit(ctx, models.AuditJobCancelled, jobID, clientIP, map[string]interface{}{
		"was_running": wasRunning,
	})
	return nil
}

// GetJob returns the stored job row
func (s *Service) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return s.storage.JobStorage().GetJob(ctx, jobID)
}

// GetJobView returns the client-facing projection of a job. A completed
// job whose cohort turns out below the current threshold is presented as
// blocked with a redacted message, even if an older gate released it.
func (s *Service) GetJobView(ctx context.Context, jobID string) (map[string]interface{}, error) {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.projectView(job), nil
}

// ListJobs returns job views newest first, optionally filtered by status.
// Every row goes through the same blocked projection as GetJobView.
func (s *Service) ListJobs(ctx context.Context, status models.JobStatus, limit, offset int) ([]map[string]interface{}, error) {
	rows, err := s.storage.JobStorage().ListJobs(ctx, status, limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]map[string]interface{}, len(rows))
	for i, job := range rows {
		views[i] = s.projectView(job)
	}
	return views, nil
}

// projectView renders the client-facing row. A completed job whose cohort
// falls below today's threshold is rewritten as blocked with a redacted
// message; the stored row is untouched.
func (s *Service) projectView(job *models.Job) map[string]interface{} {
	view := job.View()
	if job.Status == models.JobStatusCompleted && job.RecordsProcessed != nil {
		minCohort := s.effectiveMinCohort(job.CatalogID)
		if *job.RecordsProcessed < minCohort {
			view["status"] = models.JobStatusBlocked
			view["result_data"] = map[string]interface{}{
				"message": fmt.Sprintf("cohort size (%d) below minimum (%d): result withheld to protect individual privacy", *job.RecordsProcessed, minCohort),
			}
		}
	}
	return view
}

// Recover repairs state after a restart: running jobs from the previous
// process are failed (their sandboxes are gone), queued jobs re-enter the
// queue in submission order.
func (s *Service) Recover(ctx context.Context) error {
	logger := common.GetLogger()

	recovered, err := s.storage.JobStorage().MarkRunningAsRecovered(ctx, recoveredReason)
	if err != nil {
		return fmt.Errorf("failed to recover running jobs: %w", err)
	}
	if recovered > 0 {
		logger.Warn().Int("count", recovered).Msg("Failed orphaned running jobs from previous process")
	}

	queued, err := s.storage.JobStorage().ListQueuedInOrder(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queued jobs: %w", err)
	}
	for _, job := range queued {
		if err := s.queue.Enqueue(job.ID); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("Queue full during recovery, job stays queued without a worker")
			break
		}
	}
	if len(queued) > 0 {
		logger.Info().Int("count", len(queued)).Msg("Re-queued persisted jobs")
	}
	return nil
}

// JobCounts returns the number of running jobs and the total ever stored
func (s *Service) JobCounts(ctx context.Context) (active int, total int, err error) {
	active, err = s.storage.JobStorage().CountJobsByStatus(ctx, models.JobStatusRunning)
	if err != nil {
		return 0, 0, err
	}
	total, err = s.storage.JobStorage().CountJobsByStatus(ctx, "")
	if err != nil {
		return 0, 0, err
	}
	return active, total, nil
}

// PrivacyReport summarizes the policy configuration and gate activity
func (s *Service) PrivacyReport(ctx context.Context) (map[string]interface{}, error) {
	blocked, err := s.storage.JobStorage().CountJobsByStatus(ctx, models.JobStatusBlocked)
	if err != nil {
		return nil, err
	}
	completed, err := s.storage.JobStorage().CountJobsByStatus(ctx, models.JobStatusCompleted)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"node_id":            s.config.Node.NodeID,
		"min_cohort_size":    s.config.Policy.MinCohortSize,
		"result_precision":   s.config.Policy.ResultPrecision,
		"noise_enabled":      s.config.Policy.EnableNoise,
		"completed_jobs":     completed,
		"blocked_releases":   blocked,
		"allowed_kinds":      s.config.Execution.AllowedScriptKinds,
		"catalogs_published": len(s.resolver.List()),
	}, nil
}

func (s *Service) effectiveMinCohort(catalogID string) int {
	cat, err := s.resolver.Get(catalogID)
	if err != nil {
		return s.config.Policy.MinCohortSize
	}
	return cat.EffectiveMinCohortSize(s.config.Policy.MinCohortSize)
}

// allowSubmission enforces the per-requester token bucket
func (s *Service) allowSubmission(key string) bool {
	if s.config.Limits.SubmissionsPerMinute <= 0 {
		return true
	}
	s.limitersMu.Lock()
	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.config.Limits.SubmissionsPerMinute/60.0), s.config.Limits.SubmissionBurst)
		s.limiters[key] = limiter
	}
	s.limitersMu.Unlock()
	return limiter.Allow()
}

func (r *SubmitRequest) requesterKey() string {
	if r.RequesterNodeID != "" {
		return r.RequesterNodeID
	}
	if r.ClientIP != "" {
		return r.ClientIP
	}
	return "anonymous"
}

// audit writes one audit row; failures are logged, never propagated
func (s *Service) audit(ctx context.Context, action models.AuditAction, jobID string, ip string, details map[string]interface{}) {
	entry := &models.AuditEntry{
		Timestamp:    time.Now().UTC(),
		Action:       action,
		SubjectJobID: jobID,
		NodeID:       s.config.Node.NodeID,
		Details:      details,
		IP:           ip,
	}
	if err := s.storage.AuditStorage().Append(ctx, entry); err != nil {
		common.GetLogger().Error().Err(err).Str("action", string(action)).Msg("Failed to write audit entry")
	}
}

// IsAdmissionError classifies errors that map to client-side failures
func IsAdmissionError(err error) bool {
	return errors.Is(err, common.ErrKindNotAllowed) ||
		errors.Is(err, common.ErrNotFound) ||
		errors.Is(err, common.ErrRateLimited) ||
		errors.Is(err, common.ErrOverloaded)
}
