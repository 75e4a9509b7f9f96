// -----------------------------------------------------------------------
// Job - Central entity tracked through its full lifecycle on this node
// -----------------------------------------------------------------------

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the state of an analysis job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusBlocked   JobStatus = "blocked"
)

// IsTerminal returns true if the status is a terminal state
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusBlocked:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal edge in
// the job state machine. Terminal states accept no further transitions.
//
//	queued  -> running | cancelled
//	running -> completed | failed | cancelled | blocked
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning || next == JobStatusCancelled
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed ||
			next == JobStatusCancelled || next == JobStatusBlocked
	}
	return false
}

// ScriptKind identifies the interpreter a script targets
type ScriptKind string

const (
	ScriptKindPython  ScriptKind = "python"
	ScriptKindR       ScriptKind = "r"
	ScriptKindSQL     ScriptKind = "sql"
	ScriptKindJupyter ScriptKind = "jupyter"
)

// Extension returns the workspace file extension for the script kind
func (k ScriptKind) Extension() string {
	switch k {
	case ScriptKindPython:
		return "py"
	case ScriptKindR:
		return "R"
	case ScriptKindSQL:
		return "sql"
	case ScriptKindJupyter:
		return "ipynb"
	}
	return "txt"
}

// Job represents one submission of a user script against a catalog.
// Fields up to AnalysisRequestID are immutable after creation; the remainder
// is runtime state mutated only by the owning worker or the cancel path.
type Job struct {
	ID string `json:"job_id" badgerhold:"key"`

	// Immutable submission snapshot
	ScriptKind        ScriptKind             `json:"script_kind"`
	ScriptContent     string                 `json:"script_content"`
	ScriptHash        string                 `json:"script_hash"` // SHA-256 hex of ScriptContent
	CatalogID         string                 `json:"catalog_id"`
	Parameters        map[string]interface{} `json:"parameters,omitempty"`
	Filters           map[string]interface{} `json:"filters,omitempty"`
	UploadedFileIDs   []string               `json:"uploaded_file_ids,omitempty"`
	RequesterNodeID   string                 `json:"requester_node_id"`
	ExecutorNodeID    string                 `json:"executor_node_id"`
	AnalysisRequestID string                 `json:"analysis_request_id,omitempty"`
	SubmittedAt       time.Time              `json:"submitted_at"`

	// Mutable runtime state
	Status           JobStatus              `json:"status" badgerholdIndex:"Status"`
	Progress         float64                `json:"progress"` // 0..1
	ResultData       map[string]interface{} `json:"result_data,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	ExecutionTimeS   *float64               `json:"execution_time_s,omitempty"`
	MemoryUsedMB     *float64               `json:"memory_used_mb,omitempty"`
	RecordsProcessed *int                   `json:"records_processed,omitempty"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
}

// ComputeScriptHash returns the SHA-256 hex digest of the script content
func ComputeScriptHash(scriptContent string) string {
	sum := sha256.Sum256([]byte(scriptContent))
	return hex.EncodeToString(sum[:])
}

// Validate checks the invariants a job row must satisfy before insertion
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.ScriptKind == "" {
		return fmt.Errorf("script kind is required")
	}
	if j.ScriptContent == "" {
		return fmt.Errorf("script content is required")
	}
	if j.ScriptHash != ComputeScriptHash(j.ScriptContent) {
		return fmt.Errorf("script hash does not match script content")
	}
	if j.CatalogID == "" {
		return fmt.Errorf("catalog ID is required")
	}
	if j.Status == "" {
		return fmt.Errorf("job status is required")
	}
	return nil
}

// View returns the client-visible projection of the job. Script content is
// replaced by its hash; everything else passes through unchanged.
func (j *Job) View() map[string]interface{} {
	view := map[string]interface{}{
		"job_id":       j.ID,
		"script_kind":  j.ScriptKind,
		"script_hash":  j.ScriptHash,
		"catalog_id":   j.CatalogID,
		"status":       j.Status,
		"progress":     j.Progress,
		"submitted_at": j.SubmittedAt,
	}
	if j.RequesterNodeID != "" {
		view["requester_node_id"] = j.RequesterNodeID
	}
	if j.ExecutorNodeID != "" {
		view["executor_node_id"] = j.ExecutorNodeID
	}
	if j.AnalysisRequestID != "" {
		view["analysis_request_id"] = j.AnalysisRequestID
	}
	if len(j.UploadedFileIDs) > 0 {
		view["uploaded_file_ids"] = j.UploadedFileIDs
	}
	if j.ResultData != nil {
		view["result_data"] = j.ResultData
	}
	if j.ErrorMessage != "" {
		view["error_message"] = j.ErrorMessage
	}
	if j.ExecutionTimeS != nil {
		view["execution_time_s"] = *j.ExecutionTimeS
	}
	if j.MemoryUsedMB != nil {
		view["memory_used_mb"] = *j.MemoryUsedMB
	}
	if j.RecordsProcessed != nil {
		view["records_processed"] = *j.RecordsProcessed
	}
	if j.StartedAt != nil {
		view["started_at"] = *j.StartedAt
	}
	if j.CompletedAt != nil {
		view["completed_at"] = *j.CompletedAt
	}
	return view
}

// ToJSON serializes the job for queue or log transport
func (j *Job) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// JobFromJSON deserializes a job from JSON
func JobFromJSON(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
