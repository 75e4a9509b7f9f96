package models

import "time"

// RequestStatus is the review state of an analysis request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDenied   RequestStatus = "denied"
	RequestStatusExpired  RequestStatus = "expired"
)

// AnalysisRequest is a human-readable request upstream of a Job. Approval
// atomically creates and enqueues a Job carrying the request ID; there is no
// back-pointer from the job that mutates the request.
type AnalysisRequest struct {
	ID            string                 `json:"request_id" badgerhold:"key"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	RequesterName string                 `json:"requester_name"`
	RequesterNode string                 `json:"requester_node"`
	CatalogID     string                 `json:"catalog_id"`
	ScriptKind    ScriptKind             `json:"script_kind"`
	ScriptContent string                 `json:"script_content"`
	Parameters    map[string]interface{} `json:"parameters,omitempty"`
	Status        RequestStatus          `json:"status" badgerholdIndex:"Status"`
	ReviewNote    string                 `json:"review_note,omitempty"`
	JobID         string                 `json:"job_id,omitempty"` // Set when approved
	CreatedAt     time.Time              `json:"created_at"`
	ReviewedAt    *time.Time             `json:"reviewed_at,omitempty"`
	ExpiresAt     *time.Time             `json:"expires_at,omitempty"`
}
