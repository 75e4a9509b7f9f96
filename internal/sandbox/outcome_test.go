package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/custodia/internal/interfaces"
)

func outcomeWorkspace(t *testing.T, output string) *interfaces.PreparedWorkspace {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "output.json")
	if output != "" {
		require.NoError(t, os.WriteFile(path, []byte(output), 0o644))
	}
	return &interfaces.PreparedWorkspace{Dir: dir, OutputPath: path}
}

func TestBuildOutcomeParsesResults(t *testing.T) {
	ws := outcomeWorkspace(t, `{"sample_size": 150, "age_mean": 45.2}`)

	outcome := buildOutcome(ws, time.Now(), nil, false, false, "done", nil)
	assert.True(t, outcome.Success)
	assert.Equal(t, 45.2, outcome.Data["age_mean"])
	require.NotNil(t, outcome.RecordsProcessed)
	assert.Equal(t, 150, *outcome.RecordsProcessed)
	assert.Equal(t, "done", outcome.Logs)
}

func TestBuildOutcomeNoOutputFails(t *testing.T) {
	// Untouched placeholder and a missing file read the same way
	for _, output := range []string{"{}", ""} {
		ws := outcomeWorkspace(t, output)

		outcome := buildOutcome(ws, time.Now(), nil, false, false, "script ran\n", nil)
		assert.False(t, outcome.Success)
		assert.Contains(t, outcome.Error, "without writing results")
		assert.Contains(t, outcome.Error, "script ran")
		assert.Nil(t, outcome.Data)
	}
}

func TestBuildOutcomeInvalidJSON(t *testing.T) {
	ws := outcomeWorkspace(t, "not json at all")

	outcome := buildOutcome(ws, time.Now(), nil, false, false, "", nil)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "not valid JSON")
}

func TestBuildOutcomeTimeout(t *testing.T) {
	ws := outcomeWorkspace(t, `{"sample_size": 100}`)

	// Timeout wins even when the script managed to write output
	outcome := buildOutcome(ws, time.Now().Add(-30*time.Second), nil, true, false, "", nil)
	assert.False(t, outcome.Success)
	assert.True(t, outcome.TimedOut)
	assert.Contains(t, outcome.Error, "timed out")
	assert.Nil(t, outcome.Data)
}

func TestBuildOutcomeStopped(t *testing.T) {
	ws := outcomeWorkspace(t, "")

	outcome := buildOutcome(ws, time.Now(), nil, false, true, "", nil)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "stopped by cancel request")
}

func TestBuildOutcomeRunError(t *testing.T) {
	ws := outcomeWorkspace(t, "")

	outcome := buildOutcome(ws, time.Now(), errors.New("exit status 1"), false, false, "Traceback", nil)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "exit status 1")
	assert.Equal(t, "Traceback", outcome.Logs)
}
