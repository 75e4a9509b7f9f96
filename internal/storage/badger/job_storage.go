package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger.
// Status transitions are serialized by a mutex so the read-check-write of
// each conditional update is atomic within this process; BadgerHold has no
// aggregate compare-and-swap of its own.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// InsertJob stores a new job row. The job must be in queued status.
func (s *JobStorage) InsertJob(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	if job.Status != models.JobStatusQueued {
		return fmt.Errorf("new jobs must be queued, got %s", job.Status)
	}

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("job %s already exists", job.ID)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// transition applies mutate to the job iff its current status is in from.
// Returns the updated row.
func (s *JobStorage) transition(jobID string, from []models.JobStatus, mutate func(*models.Job)) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	allowed := false
	for _, st := range from {
		if job.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		if job.Status.IsTerminal() {
			return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, common.ErrJobTerminal)
		}
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, common.ErrStatusConflict)
	}

	mutate(&job)
	if err := s.db.Store().Update(jobID, &job); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return &job, nil
}

// SetRunning moves queued -> running and stamps StartedAt
func (s *JobStorage) SetRunning(ctx context.Context, jobID string, executorNodeID string) (*models.Job, error) {
	return s.transition(jobID, []models.JobStatus{models.JobStatusQueued}, func(j *models.Job) {
		now := time.Now().UTC()
		j.Status = models.JobStatusRunning
		j.StartedAt = &now
		if executorNodeID != "" {
			j.ExecutorNodeID = executorNodeID
		}
	})
}

// SetResult moves running -> completed with the released result
func (s *JobStorage) SetResult(ctx context.Context, jobID string, result map[string]interface{}, execTimeS float64, memoryMB *float64, records *int) error {
	_, err := s.transition(jobID, []models.JobStatus{models.JobStatusRunning}, func(j *models.Job) {
		now := time.Now().UTC()
		j.Status = models.JobStatusCompleted
		j.Progress = 1
		j.ResultData = result
		j.ErrorMessage = ""
		j.ExecutionTimeS = &execTimeS
		j.MemoryUsedMB = memoryMB
		j.RecordsProcessed = records
		j.CompletedAt = &now
	})
	return err
}

// SetBlocked moves running -> blocked. ResultData carries only the reason.
func (s *JobStorage) SetBlocked(ctx context.Context, jobID string, reason string) error {
	_, err := s.transition(jobID, []models.JobStatus{models.JobStatusRunning}, func(j *models.Job) {
		now := time.Now().UTC()
		j.Status = models.JobStatusBlocked
		j.Progress = 1
		j.ResultData = map[string]interface{}{"message": reason}
		j.CompletedAt = &now
	})
	return err
}

// SetFailed moves running -> failed
func (s *JobStorage) SetFailed(ctx context.Context, jobID string, errorMessage string, execTimeS float64) error {
	_, err := s.transition(jobID, []models.JobStatus{models.JobStatusRunning}, func(j *models.Job) {
		now := time.Now().UTC()
		j.Status = models.JobStatusFailed
		j.ErrorMessage = errorMessage
		j.ExecutionTimeS = &execTimeS
		j.CompletedAt = &now
	})
	return err
}

// SetCancelled moves queued or running -> cancelled
func (s *JobStorage) SetCancelled(ctx context.Context, jobID string) error {
	_, err := s.transition(jobID, []models.JobStatus{models.JobStatusQueued, models.JobStatusRunning}, func(j *models.Job) {
		now := time.Now().UTC()
		j.Status = models.JobStatusCancelled
		j.CompletedAt = &now
	})
	return err
}

// SetProgress updates the progress fraction while a job is running.
// Once the job leaves running the update is dropped silently.
func (s *JobStorage) SetProgress(ctx context.Context, jobID string, progress float64) error {
	_, err := s.transition(jobID, []models.JobStatus{models.JobStatusRunning}, func(j *models.Job) {
		if progress < 0 {
			progress = 0
		}
		if progress > 1 {
			progress = 1
		}
		j.Progress = progress
	})
	if err != nil {
		if errors.Is(err, common.ErrStatusConflict) || errors.Is(err, common.ErrJobTerminal) {
			return nil
		}
		return err
	}
	return nil
}

// DeleteJob removes a job row. Admission rollback only.
func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.Job{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// GetJob returns a job by ID
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status
func (s *JobStorage) ListJobs(ctx context.Context, status models.JobStatus, limit int, offset int) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")
	if status != "" {
		query = query.And("Status").Eq(status)
	}
	query = query.SortBy("SubmittedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// CountJobsByStatus returns the number of jobs in the given status
func (s *JobStorage) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	var query *badgerhold.Query
	if status != "" {
		query = badgerhold.Where("Status").Eq(status)
	}
	count, err := s.db.Store().Count(&models.Job{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

// ListQueuedInOrder returns queued jobs oldest first, for startup re-queue
func (s *JobStorage) ListQueuedInOrder(ctx context.Context) ([]*models.Job, error) {
	var jobs []models.Job
	query := badgerhold.Where("Status").Eq(models.JobStatusQueued).SortBy("SubmittedAt")
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list queued jobs: %w", err)
	}
	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// MarkRunningAsRecovered fails every running job with the given reason.
// Called once at startup before workers begin.
func (s *JobStorage) MarkRunningAsRecovered(ctx context.Context, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var running []models.Job
	if err := s.db.Store().Find(&running, badgerhold.Where("Status").Eq(models.JobStatusRunning)); err != nil {
		return 0, fmt.Errorf("failed to find running jobs: %w", err)
	}

	now := time.Now().UTC()
	for i := range running {
		job := &running[i]
		job.Status = models.JobStatusFailed
		job.ErrorMessage = reason
		job.CompletedAt = &now
		if err := s.db.Store().Update(job.ID, job); err != nil {
			return i, fmt.Errorf("failed to recover job %s: %w", job.ID, err)
		}
		s.logger.Warn().Str("job_id", job.ID).Msg("Recovered orphaned running job as failed")
	}
	return len(running), nil
}
