package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// UploadStorage implements uploaded-file metadata persistence on Badger
type UploadStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewUploadStorage creates a new UploadStorage instance
func NewUploadStorage(db *BadgerDB, logger arbor.ILogger) interfaces.UploadStorage {
	return &UploadStorage{
		db:     db,
		logger: logger,
	}
}

func (s *UploadStorage) StoreFile(ctx context.Context, file *models.UploadedFile) error {
	if file.ID == "" {
		return fmt.Errorf("file ID is required")
	}
	if err := s.db.Store().Insert(file.ID, file); err != nil {
		return fmt.Errorf("failed to store uploaded file: %w", err)
	}
	return nil
}

func (s *UploadStorage) GetFile(ctx context.Context, fileID string) (*models.UploadedFile, error) {
	var file models.UploadedFile
	if err := s.db.Store().Get(fileID, &file); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("uploaded file %s: %w", fileID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get uploaded file: %w", err)
	}
	return &file, nil
}

func (s *UploadStorage) ListFiles(ctx context.Context, limit int) ([]*models.UploadedFile, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("UploadedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	var files []models.UploadedFile
	if err := s.db.Store().Find(&files, query); err != nil {
		return nil, fmt.Errorf("failed to list uploaded files: %w", err)
	}
	result := make([]*models.UploadedFile, len(files))
	for i := range files {
		result[i] = &files[i]
	}
	return result, nil
}

func (s *UploadStorage) DeleteFile(ctx context.Context, fileID string) error {
	if err := s.db.Store().Delete(fileID, &models.UploadedFile{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("uploaded file %s: %w", fileID, common.ErrNotFound)
		}
		return fmt.Errorf("failed to delete uploaded file: %w", err)
	}
	return nil
}
