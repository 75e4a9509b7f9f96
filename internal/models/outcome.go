package models

// ExecutionOutcome is what the sandbox runner hands back to the worker for
// one job run. Data is the parsed output.json when the script produced one.
type ExecutionOutcome struct {
	Success          bool                   `json:"success"`
	Data             map[string]interface{} `json:"data,omitempty"`
	Error            string                 `json:"error,omitempty"`
	ExecutionTimeS   float64                `json:"execution_time_s"`
	MemoryUsedMB     *float64               `json:"memory_used_mb,omitempty"`
	RecordsProcessed *int                   `json:"records_processed,omitempty"`
	Logs             string                 `json:"logs,omitempty"`
	TimedOut         bool                   `json:"timed_out,omitempty"`
}

// SampleSize extracts the canonical cohort-size key from the script result.
// Returns -1 when absent or not numeric.
func (o *ExecutionOutcome) SampleSize() int {
	if o.Data == nil {
		return -1
	}
	v, ok := o.Data["sample_size"]
	if !ok {
		return -1
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return -1
}
