package models

import "time"

// AuditAction identifies the kind of event recorded in the audit trail
type AuditAction string

const (
	AuditJobSubmitted    AuditAction = "job_submitted"
	AuditJobCompleted    AuditAction = "job_completed"
	AuditJobFailed       AuditAction = "job_failed"
	AuditJobCancelled    AuditAction = "job_cancelled"
	AuditReleaseBlocked  AuditAction = "release_blocked"
	AuditFileUploaded    AuditAction = "file_uploaded"
	AuditRequestApproved AuditAction = "request_approved"
	AuditRequestDenied   AuditAction = "request_denied"
)

// AuditEntry is one append-only row in the audit trail. Entries are never
// updated or deleted.
type AuditEntry struct {
	ID           uint64                 `json:"id" badgerhold:"key"`
	Timestamp    time.Time              `json:"timestamp"`
	Action       AuditAction            `json:"action"`
	SubjectJobID string                 `json:"subject_job_id,omitempty" badgerholdIndex:"SubjectJobID"`
	NodeID       string                 `json:"node_id"`
	Actor        map[string]interface{} `json:"actor,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	IP           string                 `json:"ip,omitempty"`
}
