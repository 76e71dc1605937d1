package memory

import (
	"fmt"
	"sync"

	"github.com/Layr-Labs/detsig-go/pkg/persistence"
	"go.uber.org/zap"
)

// MemoryPersistence is an in-memory implementation of IArtifactStore.
//
// All records are lost when the process exits. Records are deep copied on the
// way in and out so callers cannot mutate stored state.
type MemoryPersistence struct {
	mu      sync.RWMutex
	records map[string]*persistence.SignatureRecord
	closed  bool
}

var _ persistence.IArtifactStore = (*MemoryPersistence)(nil)

// NewMemoryPersistence creates a new in-memory artifact store.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	logger.Sugar().Warnw("Using in-memory artifact store, all signature records will be lost on exit",
		"hint", "set DETSIG_STORE=badger or DETSIG_STORE=redis to keep records")

	return &MemoryPersistence{
		records: make(map[string]*persistence.SignatureRecord),
	}
}

// SaveRecord persists a signature record.
func (m *MemoryPersistence) SaveRecord(record *persistence.SignatureRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("cannot save record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.records[record.Id] = record.Clone()
	return nil
}

// LoadRecord retrieves a signature record by id.
func (m *MemoryPersistence) LoadRecord(id string) (*persistence.SignatureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	record, exists := m.records[id]
	if !exists {
		return nil, nil
	}
	return record.Clone(), nil
}

// ListRecords returns all records sorted by creation time.
func (m *MemoryPersistence) ListRecords() ([]*persistence.SignatureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	result := make([]*persistence.SignatureRecord, 0, len(m.records))
	for _, record := range m.records {
		result = append(result, record.Clone())
	}
	persistence.SortRecords(result)
	return result, nil
}

// DeleteRecord removes a record. Idempotent.
func (m *MemoryPersistence) DeleteRecord(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	delete(m.records, id)
	return nil
}

// Close marks the store as closed. Idempotent.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}

// HealthCheck verifies the store is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
