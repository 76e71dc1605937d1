package persistence

import "errors"

// ErrClosed is returned by every operation on a store after Close.
var ErrClosed = errors.New("artifact store is closed")

// IArtifactStore persists signature records produced by signing sessions so
// they can be listed and verified again later. All implementations must be
// safe for concurrent use.
type IArtifactStore interface {
	// SaveRecord persists a record under its Id, overwriting any previous record with that Id.
	SaveRecord(record *SignatureRecord) error

	// LoadRecord returns nil, nil if the record does not exist.
	LoadRecord(id string) (*SignatureRecord, error)

	// ListRecords returns all records sorted by CreatedAt, then Id.
	// Returns an empty slice if no records exist.
	ListRecords() ([]*SignatureRecord, error)

	// DeleteRecord is idempotent: deleting a missing record returns nil.
	DeleteRecord(id string) error

	// Close is idempotent. After Close all other operations return ErrClosed.
	Close() error

	// HealthCheck returns nil if the store is operational.
	HealthCheck() error
}
