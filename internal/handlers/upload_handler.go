// -----------------------------------------------------------------------
// Upload handler - multipart file uploads for scripts and auxiliary data
// -----------------------------------------------------------------------

package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
)

// maxUploadBytes caps one multipart upload
const maxUploadBytes = 64 << 20

// UploadHandler stores uploaded files and their metadata rows
type UploadHandler struct {
	uploads    interfaces.UploadStorage
	audit      interfaces.AuditStorage
	uploadsDir string
	nodeID     string
	logger     arbor.ILogger
}

// NewUploadHandler creates the handler and ensures the uploads directory
func NewUploadHandler(uploads interfaces.UploadStorage, audit interfaces.AuditStorage, uploadsDir, nodeID string, logger arbor.ILogger) (*UploadHandler, error) {
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory %s: %w", uploadsDir, err)
	}
	return &UploadHandler{
		uploads:    uploads,
		audit:      audit,
		uploadsDir: uploadsDir,
		nodeID:     nodeID,
		logger:     logger,
	}, nil
}

// UploadFileHandler accepts one multipart file under the "file" field
// POST /api/v1/files
func (h *UploadHandler) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid multipart body or file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	original := filepath.Base(header.Filename)
	ext, ok := allowedExtension(original)
	if !ok {
		WriteError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("File extension of %q is not allowed", original))
		return
	}

	fileID := common.NewFileID()
	storedPath := filepath.Join(h.uploadsDir, fileID+"_"+original)
	dst, err := os.Create(storedPath)
	if err != nil {
		h.logger.Error().Err(err).Str("path", storedPath).Msg("Failed to create upload file")
		WriteError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}
	size, err := io.Copy(dst, file)
	closeErr := dst.Close()
	if err != nil || closeErr != nil {
		os.Remove(storedPath)
		WriteError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	row := &models.UploadedFile{
		ID:           fileID,
		OriginalName: original,
		StoredPath:   storedPath,
		Kind:         strings.TrimPrefix(ext, "."),
		SizeBytes:    size,
		UploadedAt:   time.Now().UTC(),
	}
	if err := h.uploads.StoreFile(r.Context(), row); err != nil {
		os.Remove(storedPath)
		h.logger.Error().Err(err).Msg("Failed to store upload metadata")
		WriteError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	h.auditUpload(r, row)
	WriteJSON(w, http.StatusCreated, row)
}

// GetFileHandler returns metadata for one uploaded file
// GET /api/v1/files/{id}
func (h *UploadHandler) GetFileHandler(w http.ResponseWriter, r *http.Request, fileID string) {
	row, err := h.uploads.GetFile(r.Context(), fileID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, row)
}

// ListFilesHandler returns recent uploads
// GET /api/v1/files
func (h *UploadHandler) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.uploads.ListFiles(r.Context(), 100)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list uploads")
		WriteError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"files": rows,
		"count": len(rows),
	})
}

// allowedExtension matches the filename against both upload allow-lists,
// handling the two-part .nii.gz suffix
func allowedExtension(filename string) (string, bool) {
	lowered := strings.ToLower(filename)
	if strings.HasSuffix(lowered, ".nii.gz") {
		return ".nii.gz", true
	}
	for _, ext := range models.ScriptUploadExtensions {
		if strings.HasSuffix(filename, ext) {
			return strings.ToLower(ext), true
		}
	}
	for _, ext := range models.DataUploadExtensions {
		if strings.HasSuffix(lowered, ext) {
			return ext, true
		}
	}
	return "", false
}

func (h *UploadHandler) auditUpload(r *http.Request, row *models.UploadedFile) {
	entry := &models.AuditEntry{
		Timestamp: time.Now().UTC(),
		Action:    models.AuditFileUploaded,
		NodeID:    h.nodeID,
		IP:        clientIP(r),
		Details: map[string]interface{}{
			"file_id":       row.ID,
			"original_name": row.OriginalName,
			"size_bytes":    row.SizeBytes,
		},
	}
	if err := h.audit.Append(r.Context(), entry); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write audit entry for upload")
	}
}
