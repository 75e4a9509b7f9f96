// -----------------------------------------------------------------------
// Subprocess runner - fallback backend that executes scripts as local
// child processes when no container engine is available. Enforces the
// wall-clock timeout but cannot enforce memory or network isolation.
// -----------------------------------------------------------------------

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
)

// SubprocessRunner executes job scripts as direct child processes
type SubprocessRunner struct {
	timeout time.Duration
	reg     *registry
}

// NewSubprocessRunner builds the subprocess backend
func NewSubprocessRunner(timeout time.Duration) *SubprocessRunner {
	return &SubprocessRunner{
		timeout: timeout,
		reg:     newRegistry(),
	}
}

// Name identifies the backend
func (r *SubprocessRunner) Name() string {
	return "subprocess"
}

// Available reports whether at least a Python interpreter is on PATH
func (r *SubprocessRunner) Available(ctx context.Context) bool {
	_, err := exec.LookPath("python3")
	if err != nil {
		_, err = exec.LookPath("python")
	}
	return err == nil
}

// Run executes the script and blocks until exit, timeout or stop
func (r *SubprocessRunner) Run(ctx context.Context, jobID string, ws *interfaces.PreparedWorkspace) (*models.ExecutionOutcome, error) {
	logger := common.GetLogger()

	argv, err := r.argvFor(ws)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = ws.Dir
	cmd.Env = os.Environ()
	for k, v := range ws.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// The shim lives next to the script, so imports resolve from the
	// workspace directory
	cmd.Env = append(cmd.Env, "PYTHONPATH="+ws.Dir)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}

	stopped := make(chan struct{})
	r.reg.add(jobID, func() {
		close(stopped)
		_ = cmd.Process.Kill()
	})
	defer r.reg.remove(jobID)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	var runErr error
	timedOut := false
	wasStopped := false

	select {
	case runErr = <-done:
	case <-timer.C:
		timedOut = true
		_ = cmd.Process.Kill()
		<-done
	case <-stopped:
		wasStopped = true
		<-done
	case <-ctx.Done():
		wasStopped = true
		_ = cmd.Process.Kill()
		<-done
	}

	logger.Debug().
		Str("job_id", jobID).
		Str("backend", r.Name()).
		Float64("elapsed_s", time.Since(started).Seconds()).
		Bool("timed_out", timedOut).
		Msg("Subprocess execution finished")

	memoryMB := processMemoryMB(cmd)
	return buildOutcome(ws, started, runErr, timedOut, wasStopped, output.String(), memoryMB), nil
}

// Stop kills the child process of a running job. Idempotent.
func (r *SubprocessRunner) Stop(ctx context.Context, jobID string) error {
	r.reg.stop(jobID)
	return nil
}

func (r *SubprocessRunner) argvFor(ws *interfaces.PreparedWorkspace) ([]string, error) {
	switch ws.Kind {
	case models.ScriptKindPython:
		python, err := exec.LookPath("python3")
		if err != nil {
			python, err = exec.LookPath("python")
			if err != nil {
				return nil, fmt.Errorf("no python interpreter found: %w", err)
			}
		}
		return []string{python, ws.ScriptPath}, nil
	case models.ScriptKindR:
		rscript, err := exec.LookPath("Rscript")
		if err != nil {
			return nil, fmt.Errorf("Rscript not found: %w", err)
		}
		return []string{rscript, ws.ScriptPath}, nil
	case models.ScriptKindJupyter:
		jupyter, err := exec.LookPath("jupyter")
		if err != nil {
			return nil, fmt.Errorf("jupyter not found: %w", err)
		}
		return []string{jupyter, "nbconvert", "--to", "notebook", "--execute", ws.ScriptPath, "--output", "executed.ipynb"}, nil
	}
	return nil, fmt.Errorf("script kind %s has no subprocess interpreter", ws.Kind)
}
