package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
)

// Manager owns the Badger connection and the typed stores built on it
type Manager struct {
	db       *BadgerDB
	jobs     interfaces.JobStorage
	audit    interfaces.AuditStorage
	uploads  interfaces.UploadStorage
	nodes    interfaces.NodeStorage
	requests interfaces.RequestStorage
}

// NewManager opens the database and wires up every store
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}
	return &Manager{
		db:       db,
		jobs:     NewJobStorage(db, logger),
		audit:    NewAuditStorage(db, logger),
		uploads:  NewUploadStorage(db, logger),
		nodes:    NewNodeStorage(db, logger),
		requests: NewRequestStorage(db, logger),
	}, nil
}

func (m *Manager) JobStorage() interfaces.JobStorage         { return m.jobs }
func (m *Manager) AuditStorage() interfaces.AuditStorage     { return m.audit }
func (m *Manager) UploadStorage() interfaces.UploadStorage   { return m.uploads }
func (m *Manager) NodeStorage() interfaces.NodeStorage       { return m.nodes }
func (m *Manager) RequestStorage() interfaces.RequestStorage { return m.requests }

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
