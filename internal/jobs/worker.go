// -----------------------------------------------------------------------
// Worker pool - drains the admission queue and drives each job through
// workspace build, sandboxed execution and the release gate
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/models"
)

// Pool runs the configured number of job workers
type Pool struct {
	service *Service
	workers int
	wg      sync.WaitGroup
}

// NewPool creates a worker pool over the service's queue
func NewPool(service *Service, workers int) *Pool {
	return &Pool{
		service: service,
		workers: workers,
	}
}

// Start launches the workers. They exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	logger := common.GetLogger()
	for i := 0; i < p.workers; i++ {
		worker := i
		p.wg.Add(1)
		common.SafeGo(logger, fmt.Sprintf("job-worker-%d", worker), func() {
			defer p.wg.Done()
			p.loop(ctx, worker)
		})
	}
	logger.Info().Int("workers", p.workers).Msg("Worker pool started")
}

// Wait blocks until every worker has exited
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context, worker int) {
	logger := common.GetLogger()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Int("worker", worker).Msg("Worker shutting down")
			return
		case jobID := <-p.service.Queue().Dequeue():
			p.process(ctx, jobID)
		}
	}
}

// process drives one job end to end. Every early exit leaves the job in a
// terminal state; cancellation races are absorbed by the conditional
// transitions in storage.
func (p *Pool) process(ctx context.Context, jobID string) {
	logger := common.GetLogger()
	store := p.service.storage.JobStorage()

	job, err := store.SetRunning(ctx, jobID, p.service.config.Node.NodeID)
	if err != nil {
		// Cancelled while queued, or an ID whose admission was rolled back
		if errors.Is(err, common.ErrJobTerminal) || errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrStatusConflict) {
			logger.Debug().Err(err).Str("job_id", jobID).Msg("Skipping dequeued job")
			return
		}
		logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to start job")
		return
	}

	logger.Info().
		Str("job_id", jobID).
		Str("catalog", job.CatalogID).
		Str("kind", string(job.ScriptKind)).
		Msg("Job started")

	// Static policy enforcement. Blocked scripts fail here, before any
	// workspace exists.
	validation := p.service.validator.Validate(job.ScriptKind, job.ScriptContent)
	if !validation.Safe {
		p.fail(ctx, jobID, fmt.Sprintf("script blocked by static policy: %s", strings.Join(validation.BlockedPatterns, ", ")), 0)
		return
	}

	cat, err := p.service.resolver.Get(job.CatalogID)
	if err != nil {
		p.fail(ctx, jobID, fmt.Sprintf("catalog %s no longer available: %v", job.CatalogID, err), 0)
		return
	}
	minCohort := cat.EffectiveMinCohortSize(p.service.config.Policy.MinCohortSize)

	uploads := make([]*models.UploadedFile, 0, len(job.UploadedFileIDs))
	for _, fileID := range job.UploadedFileIDs {
		file, err := p.service.storage.UploadStorage().GetFile(ctx, fileID)
		if err != nil {
			p.fail(ctx, jobID, fmt.Sprintf("uploaded file %s no longer available: %v", fileID, err), 0)
			return
		}
		uploads = append(uploads, file)
	}

	ws, err := p.service.builder.Build(job, cat, uploads, minCohort)
	if err != nil {
		p.failInternal(ctx, jobID, "workspace build failed", err)
		return
	}
	defer p.cleanup(jobID)

	_ = store.SetProgress(ctx, jobID, 0.1)

	outcome, err := p.service.runner.Run(ctx, jobID, ws)
	if err != nil {
		p.failInternal(ctx, jobID, "sandbox setup failed", err)
		return
	}

	_ = store.SetProgress(ctx, jobID, 0.9)

	if !outcome.Success {
		p.fail(ctx, jobID, outcome.Error, outcome.ExecutionTimeS)
		return
	}

	records := -1
	if outcome.RecordsProcessed != nil {
		records = *outcome.RecordsProcessed
	} else if n := cat.FirstTabularRecordCount(); n >= 0 {
		records = n
	}

	decision := p.service.gate.Release(outcome.Data, records, minCohort)
	if !decision.Released {
		if err := store.SetBlocked(ctx, jobID, decision.Reason); err != nil {
			logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist blocked status")
			return
		}
		p.service.audit(ctx, models.AuditReleaseBlocked, jobID, "", map[string]interface{}{
			"reason":          decision.Reason,
			"cohort_size":     records,
			"min_cohort_size": minCohort,
		})
		logger.Warn().
			Str("job_id", jobID).
			Int("cohort", records).
			Int("min_cohort", minCohort).
			Msg("Result withheld by release gate")
		return
	}

	var recordsPtr *int
	if records >= 0 {
		recordsPtr = &records
	}
	if err := store.SetResult(ctx, jobID, decision.Result, outcome.ExecutionTimeS, outcome.MemoryUsedMB, recordsPtr); err != nil {
		logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist result")
		return
	}
	p.service.audit(ctx, models.AuditJobCompleted, jobID, "", map[string]interface{}{
		"execution_time_s":  outcome.ExecutionTimeS,
		"records_processed": records,
	})
	logger.Info().
		Str("job_id", jobID).
		Float64("execution_time_s", outcome.ExecutionTimeS).
		Int("records", records).
		Msg("Job completed")
}

// failInternal persists only an opaque correlation id for host-side faults.
// The full detail stays in the logs.
func (p *Pool) failInternal(ctx context.Context, jobID string, stage string, err error) {
	corrID := common.NewCorrelationID()
	common.GetLogger().Error().
		Err(err).
		Str("job_id", jobID).
		Str("correlation_id", corrID).
		Str("stage", stage).
		Msg("Internal job failure")
	p.fail(ctx, jobID, fmt.Sprintf("internal error (%s)", corrID), 0)
}

// fail moves the job to failed unless the cancel path got there first
func (p *Pool) fail(ctx context.Context, jobID string, message string, execTimeS float64) {
	logger := common.GetLogger()
	if err := p.service.storage.JobStorage().SetFailed(ctx, jobID, message, execTimeS); err != nil {
		logger.Debug().Err(err).Str("job_id", jobID).Msg("Job left running state before failure persisted")
		return
	}
	p.service.audit(ctx, models.AuditJobFailed, jobID, "", map[string]interface{}{
		"error": message,
	})
	logger.Warn().Str("job_id", jobID).Str("error", message).Msg("Job failed")
}

func (p *Pool) cleanup(jobID string) {
	if p.service.config.Execution.RetainWorkspaces {
		return
	}
	if err := p.service.builder.Remove(jobID); err != nil {
		common.GetLogger().Warn().Err(err).Str("job_id", jobID).Msg("Failed to remove workspace")
	}
}
