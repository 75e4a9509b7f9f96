package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewFileID generates a unique uploaded-file ID with the "file_" prefix
// Format: file_<uuid>
func NewFileID() string {
	return "file_" + uuid.New().String()
}

// NewRequestID generates a unique analysis-request ID with the "req_" prefix
// Format: req_<uuid>
func NewRequestID() string {
	return "req_" + uuid.New().String()
}

// NewCorrelationID generates an opaque correlation ID used when internal
// errors are surfaced to clients without detail
func NewCorrelationID() string {
	return "err_" + uuid.New().String()[:8]
}
