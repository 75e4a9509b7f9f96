package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RequestStorage implements the analysis-request review queue on Badger
type RequestStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewRequestStorage creates a new RequestStorage instance
func NewRequestStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RequestStorage {
	return &RequestStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RequestStorage) StoreRequest(ctx context.Context, req *models.AnalysisRequest) error {
	if req.ID == "" {
		return fmt.Errorf("request ID is required")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	if err := s.db.Store().Insert(req.ID, req); err != nil {
		return fmt.Errorf("failed to store request: %w", err)
	}
	return nil
}

func (s *RequestStorage) GetRequest(ctx context.Context, requestID string) (*models.AnalysisRequest, error) {
	var req models.AnalysisRequest
	if err := s.db.Store().Get(requestID, &req); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("request %s: %w", requestID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &req, nil
}

func (s *RequestStorage) ListRequests(ctx context.Context, status models.RequestStatus, limit int) ([]*models.AnalysisRequest, error) {
	query := badgerhold.Where("ID").Ne("")
	if status != "" {
		query = query.And("Status").Eq(status)
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var requests []models.AnalysisRequest
	if err := s.db.Store().Find(&requests, query); err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	result := make([]*models.AnalysisRequest, len(requests))
	for i := range requests {
		result[i] = &requests[i]
	}
	return result, nil
}

// SetReviewed moves pending -> approved/denied. The mutex makes the
// read-check-write atomic so a request cannot be reviewed twice.
func (s *RequestStorage) SetReviewed(ctx context.Context, requestID string, status models.RequestStatus, note string, jobID string) error {
	if status != models.RequestStatusApproved && status != models.RequestStatusDenied {
		return fmt.Errorf("review status must be approved or denied, got %s", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != models.RequestStatusPending {
		return fmt.Errorf("request %s is %s: %w", requestID, req.Status, common.ErrStatusConflict)
	}

	now := time.Now().UTC()
	req.Status = status
	req.ReviewNote = note
	req.JobID = jobID
	req.ReviewedAt = &now

	if err := s.db.Store().Update(requestID, req); err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	return nil
}
