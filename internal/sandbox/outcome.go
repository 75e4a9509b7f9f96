package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
)

// logExcerptLimit caps how much of the script log lands in error messages
const logExcerptLimit = 500

// buildOutcome assembles the execution outcome from the exit state and the
// workspace output file. A script that exits zero but never writes results
// is a failure, no partial data is exposed.
func buildOutcome(ws *interfaces.PreparedWorkspace, started time.Time, runErr error, timedOut bool, stopped bool, logs string, memoryMB *float64) *models.ExecutionOutcome {
	elapsed := time.Since(started).Seconds()
	outcome := &models.ExecutionOutcome{
		ExecutionTimeS: elapsed,
		MemoryUsedMB:   memoryMB,
		Logs:           logs,
		TimedOut:       timedOut,
	}

	switch {
	case timedOut:
		outcome.Error = fmt.Sprintf("script execution timed out after %.0f seconds", elapsed)
		return outcome
	case stopped:
		outcome.Error = "script execution stopped by cancel request"
		return outcome
	case runErr != nil:
		outcome.Error = withLogExcerpt(fmt.Sprintf("script exited with error: %v", runErr), logs)
		return outcome
	}

	raw, err := os.ReadFile(ws.OutputPath)
	if err != nil || len(raw) == 0 || string(raw) == "{}" {
		outcome.Error = withLogExcerpt("script finished without writing results to output.json", logs)
		return outcome
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		outcome.Error = fmt.Sprintf("script output is not valid JSON: %v", err)
		return outcome
	}

	outcome.Success = true
	outcome.Data = data
	if n := outcome.SampleSize(); n >= 0 {
		outcome.RecordsProcessed = &n
	}
	return outcome
}

// withLogExcerpt appends the tail of the script log to an error message
func withLogExcerpt(message, logs string) string {
	if logs == "" {
		return message
	}
	if len(logs) > logExcerptLimit {
		logs = "..." + logs[len(logs)-logExcerptLimit:]
	}
	return message + "\n" + logs
}
