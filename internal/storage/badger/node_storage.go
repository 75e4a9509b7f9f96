package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// NodeStorage implements the peer-node registry on Badger
type NodeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNodeStorage creates a new NodeStorage instance
func NewNodeStorage(db *BadgerDB, logger arbor.ILogger) interfaces.NodeStorage {
	return &NodeStorage{
		db:     db,
		logger: logger,
	}
}

func (s *NodeStorage) UpsertNode(ctx context.Context, node *models.Node) error {
	if node.ID == "" {
		return fmt.Errorf("node ID is required")
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	if err := s.db.Store().Upsert(node.ID, node); err != nil {
		return fmt.Errorf("failed to upsert node: %w", err)
	}
	return nil
}

func (s *NodeStorage) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	var node models.Node
	if err := s.db.Store().Get(nodeID, &node); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("node %s: %w", nodeID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return &node, nil
}

func (s *NodeStorage) ListNodes(ctx context.Context, activeOnly bool) ([]*models.Node, error) {
	query := badgerhold.Where("ID").Ne("")
	if activeOnly {
		query = query.And("IsActive").Eq(true)
	}
	query = query.SortBy("Name")

	var nodes []models.Node
	if err := s.db.Store().Find(&nodes, query); err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	result := make([]*models.Node, len(nodes))
	for i := range nodes {
		result[i] = &nodes[i]
	}
	return result, nil
}

// TouchNode stamps LastSeen and marks the node active
func (s *NodeStorage) TouchNode(ctx context.Context, nodeID string) error {
	node, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	node.LastSeen = time.Now().UTC()
	node.IsActive = true
	if err := s.db.Store().Update(nodeID, node); err != nil {
		return fmt.Errorf("failed to touch node: %w", err)
	}
	return nil
}
