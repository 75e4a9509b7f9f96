package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AuditStorage implements the append-only audit trail on Badger
type AuditStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAuditStorage creates a new AuditStorage instance
func NewAuditStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AuditStorage {
	return &AuditStorage{
		db:     db,
		logger: logger,
	}
}

// Append stores one audit row. The key is a monotonic sequence so rows
// list back in write order.
func (s *AuditStorage) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := s.db.Store().Insert(badgerhold.NextSequence(), entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByJob returns the audit rows for one job in write order
func (s *AuditStorage) ListByJob(ctx context.Context, jobID string) ([]*models.AuditEntry, error) {
	var entries []models.AuditEntry
	query := badgerhold.Where("SubjectJobID").Eq(jobID).SortBy("ID")
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	result := make([]*models.AuditEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

// ListRecent returns the newest audit rows
func (s *AuditStorage) ListRecent(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	query := badgerhold.Where("ID").Ge(uint64(0)).SortBy("ID").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []models.AuditEntry
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	result := make([]*models.AuditEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}
