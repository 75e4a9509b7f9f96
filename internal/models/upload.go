package models

import "time"

// UploadedFile records one uploaded script or data blob. Rows are immutable
// once written; jobs reference them by ID.
type UploadedFile struct {
	ID           string    `json:"file_id" badgerhold:"key"`
	OriginalName string    `json:"original_name"`
	StoredPath   string    `json:"stored_path"` // Inside the configured uploads area
	Kind         string    `json:"kind"`        // Extension from the allow-list, without the dot
	SizeBytes    int64     `json:"size_bytes"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// ScriptUploadExtensions is the allow-list for uploaded script files
var ScriptUploadExtensions = []string{".py", ".r", ".R"}

// DataUploadExtensions is the allow-list for uploaded data blobs
var DataUploadExtensions = []string{".csv", ".tsv", ".json", ".npy", ".npz", ".mat", ".nii", ".nii.gz"}
