package interfaces

import (
	"context"

	"github.com/ternarybob/custodia/internal/models"
)

// JobStorage - persistence for job rows with status-conditional transitions.
// Every transition method checks the current status inside the write and
// returns common.ErrStatusConflict when the precondition no longer holds,
// so concurrent workers and the cancel path cannot clobber each other.
type JobStorage interface {
	// InsertJob stores a new job in queued status
	InsertJob(ctx context.Context, job *models.Job) error

	// SetRunning moves queued -> running and stamps StartedAt.
	// Returns the updated job so the worker holds the fresh row.
	SetRunning(ctx context.Context, jobID string, executorNodeID string) (*models.Job, error)

	// SetResult moves running -> completed with released result data
	SetResult(ctx context.Context, jobID string, result map[string]interface{}, execTimeS float64, memoryMB *float64, records *int) error

	// SetBlocked moves running -> blocked with the block reasons.
	// No result data is stored.
	SetBlocked(ctx context.Context, jobID string, reason string) error

	// SetFailed moves running -> failed with the error message
	SetFailed(ctx context.Context, jobID string, errorMessage string, execTimeS float64) error

	// SetCancelled moves queued or running -> cancelled
	SetCancelled(ctx context.Context, jobID string) error

	// SetProgress updates the progress fraction of a running job.
	// Silently ignored once the job is no longer running.
	SetProgress(ctx context.Context, jobID string, progress float64) error

	// DeleteJob removes a job row. Only used to roll back an admission
	// whose enqueue failed; jobs otherwise persist forever.
	DeleteJob(ctx context.Context, jobID string) error

	// GetJob returns a job by ID, common.ErrNotFound when absent
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// ListJobs returns jobs filtered by status (empty = all), newest first
	ListJobs(ctx context.Context, status models.JobStatus, limit int, offset int) ([]*models.Job, error)

	// CountJobsByStatus returns the number of jobs in the given status;
	// an empty status counts every job
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)

	// ListQueuedInOrder returns queued jobs in submission order, for
	// startup re-queue
	ListQueuedInOrder(ctx context.Context) ([]*models.Job, error)

	// MarkRunningAsRecovered moves every running job to failed with the
	// given reason. Called once at startup before workers begin.
	MarkRunningAsRecovered(ctx context.Context, reason string) (int, error)
}

// AuditStorage - append-only audit trail
type AuditStorage interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByJob(ctx context.Context, jobID string) ([]*models.AuditEntry, error)
	ListRecent(ctx context.Context, limit int) ([]*models.AuditEntry, error)
}

// UploadStorage - metadata rows for uploaded files
type UploadStorage interface {
	StoreFile(ctx context.Context, file *models.UploadedFile) error
	GetFile(ctx context.Context, fileID string) (*models.UploadedFile, error)
	ListFiles(ctx context.Context, limit int) ([]*models.UploadedFile, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// NodeStorage - registry of known peer nodes
type NodeStorage interface {
	UpsertNode(ctx context.Context, node *models.Node) error
	GetNode(ctx context.Context, nodeID string) (*models.Node, error)
	ListNodes(ctx context.Context, activeOnly bool) ([]*models.Node, error)
	TouchNode(ctx context.Context, nodeID string) error
}

// RequestStorage - analysis request review queue
type RequestStorage interface {
	StoreRequest(ctx context.Context, req *models.AnalysisRequest) error
	GetRequest(ctx context.Context, requestID string) (*models.AnalysisRequest, error)
	ListRequests(ctx context.Context, status models.RequestStatus, limit int) ([]*models.AnalysisRequest, error)
	// SetReviewed moves pending -> approved/denied conditionally,
	// stamping the review fields. ErrStatusConflict when not pending.
	SetReviewed(ctx context.Context, requestID string, status models.RequestStatus, note string, jobID string) error
}

// StorageManager - owns the database connection and hands out typed stores
type StorageManager interface {
	JobStorage() JobStorage
	AuditStorage() AuditStorage
	UploadStorage() UploadStorage
	NodeStorage() NodeStorage
	RequestStorage() RequestStorage
	Close() error
}
