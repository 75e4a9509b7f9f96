package interfaces

import (
	"context"

	"github.com/ternarybob/custodia/internal/models"
)

// PreparedWorkspace is a fully materialized job directory ready to execute
type PreparedWorkspace struct {
	Dir        string            // Absolute path of the per-job directory
	ScriptPath string            // Script file inside Dir
	OutputPath string            // output.json inside Dir
	Env        map[string]string // DATA_ROOT, JOB_CONFIG, OUTPUT_FILE, MIN_COHORT_SIZE
	Kind       models.ScriptKind
}

// Runner executes one prepared workspace under isolation and resource caps.
// Run blocks until the script exits, times out, or is stopped via Stop.
type Runner interface {
	// Name identifies the backend (docker, subprocess)
	Name() string

	// Available reports whether the backend can run on this host
	Available(ctx context.Context) bool

	// Run executes the job script. A timeout or stop is reported through
	// the outcome, not the error; the error is reserved for setup faults.
	Run(ctx context.Context, jobID string, ws *PreparedWorkspace) (*models.ExecutionOutcome, error)

	// Stop terminates a running job if it is still executing. Idempotent.
	Stop(ctx context.Context, jobID string) error
}
