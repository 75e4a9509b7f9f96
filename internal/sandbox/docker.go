// -----------------------------------------------------------------------
// Docker runner - preferred backend. Runs the workspace in a container
// with no network, a read-only data mount and memory/cpu caps.
// -----------------------------------------------------------------------

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
)

const (
	containerDataRoot  = "/data"
	containerWorkspace = "/workspace"
)

// DockerRunner shells out to the docker CLI for each job
type DockerRunner struct {
	images       map[string]string // script kind -> image
	dataRoot     string
	memoryMB     int
	cpuCores     float64
	timeout      time.Duration
	gracefulStop time.Duration
	reg          *registry
}

// NewDockerRunner builds the docker backend from the execution config
func NewDockerRunner(cfg *common.ExecutionConfig, dataRoot string) *DockerRunner {
	return &DockerRunner{
		images:       cfg.Images,
		dataRoot:     dataRoot,
		memoryMB:     cfg.MaxMemoryMB,
		cpuCores:     cfg.MaxCPUCores,
		timeout:      cfg.MaxExecutionTime,
		gracefulStop: cfg.GracefulStopWindow,
		reg:          newRegistry(),
	}
}

// Name identifies the backend
func (r *DockerRunner) Name() string {
	return "docker"
}

// Available probes the docker daemon
func (r *DockerRunner) Available(ctx context.Context) bool {
	probe, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(probe, "docker", "info", "--format", "{{.ServerVersion}}").Run() == nil
}

// Run starts a container for the workspace and blocks until it exits,
// times out or is stopped
func (r *DockerRunner) Run(ctx context.Context, jobID string, ws *interfaces.PreparedWorkspace) (*models.ExecutionOutcome, error) {
	logger := common.GetLogger()

	image, ok := r.images[string(ws.Kind)]
	if !ok || image == "" {
		return nil, fmt.Errorf("no container image configured for script kind %s", ws.Kind)
	}
	argv, err := containerArgv(ws.Kind)
	if err != nil {
		return nil, err
	}

	containerName := "custodia-" + jobID
	args := []string{
		"run", "--rm",
		"--name", containerName,
		"--network", "none",
		"--memory", fmt.Sprintf("%dm", r.memoryMB),
		"--cpus", strconv.FormatFloat(r.cpuCores, 'f', -1, 64),
		"-v", r.dataRoot + ":" + containerDataRoot + ":ro",
		"-v", ws.Dir + ":" + containerWorkspace,
		"-w", containerWorkspace,
		"-e", "DATA_ROOT=" + containerDataRoot,
		"-e", "JOB_CONFIG=" + containerWorkspace + "/job_config.json",
		"-e", "OUTPUT_FILE=" + containerWorkspace + "/output.json",
		"-e", "MIN_COHORT_SIZE=" + ws.Env["MIN_COHORT_SIZE"],
		"-e", "PYTHONPATH=" + containerWorkspace,
		image,
	}
	args = append(args, argv...)

	cmd := exec.Command("docker", args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	logger.Info().
		Str("job_id", jobID).
		Str("image", image).
		Str("container", containerName).
		Msg("Container started")

	stopped := make(chan struct{})
	r.reg.add(jobID, func() {
		close(stopped)
		r.stopContainer(containerName)
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
		r.killContainer(containerName)
		<-done
	case <-stopped:
		wasStopped = true
		<-done
	case <-ctx.Done():
		wasStopped = true
		r.stopContainer(containerName)
		<-done
	}

	logger.Debug().
		Str("job_id", jobID).
		Str("backend", r.Name()).
		Float64("elapsed_s", time.Since(started).Seconds()).
		Bool("timed_out", timedOut).
		Msg("Container execution finished")

	return buildOutcome(ws, started, runErr, timedOut, wasStopped, output.String(), nil), nil
}

// Stop terminates the container of a running job. Idempotent.
func (r *DockerRunner) Stop(ctx context.Context, jobID string) error {
	r.reg.stop(jobID)
	return nil
}

// stopContainer asks the container to exit within the graceful window,
// then docker escalates to SIGKILL on its own
func (r *DockerRunner) stopContainer(name string) {
	grace := int(r.gracefulStop.Seconds())
	if grace < 1 {
		grace = 1
	}
	_ = exec.Command("docker", "stop", "-t", strconv.Itoa(grace), name).Run()
}

func (r *DockerRunner) killContainer(name string) {
	_ = exec.Command("docker", "kill", name).Run()
}

func containerArgv(kind models.ScriptKind) ([]string, error) {
	switch kind {
	case models.ScriptKindPython:
		return []string{"python3", "script.py"}, nil
	case models.ScriptKindR:
		return []string{"Rscript", "script.R"}, nil
	case models.ScriptKindJupyter:
		return []string{"jupyter", "nbconvert", "--to", "notebook", "--execute", "script.ipynb", "--output", "executed.ipynb"}, nil
	}
	return nil, fmt.Errorf("script kind %s has no container command", kind)
}
