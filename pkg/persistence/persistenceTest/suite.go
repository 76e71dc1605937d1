// Package persistenceTest holds the behaviour every IArtifactStore backend must share.
package persistenceTest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Layr-Labs/detsig-go/pkg/config"
	"github.com/Layr-Labs/detsig-go/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRecord returns a valid record with the given id and creation time.
func NewRecord(id string, createdAt int64) *persistence.SignatureRecord {
	return &persistence.SignatureRecord{
		Id:            id,
		Scheme:        config.SchemeEd25519phSHA512,
		KeyId:         "local-key-" + id,
		KeyBackend:    config.KeyBackendLocal,
		PublicKey:     []byte{0x30, 0x2a, 0x30, 0x05, 0x06, 0x03, 0x2b, 0x65, 0x70},
		Signature:     []byte{1, 2, 3, 4, 5, 6, 7, 8},
		MessageName:   id + ".bin",
		MessageSize:   int64(len(id)),
		MessageDigest: "00ff",
		CreatedAt:     createdAt,
	}
}

// RunStoreTests exercises the IArtifactStore contract. newStore must return a
// fresh, empty store for every call.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) persistence.IArtifactStore) {
	t.Run("Should save and load a record", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		record := NewRecord("rec-1", 100)
		require.NoError(t, store.SaveRecord(record))

		loaded, err := store.LoadRecord("rec-1")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, record, loaded)
	})

	t.Run("Should return nil for a missing record", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		loaded, err := store.LoadRecord("missing")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Should reject invalid records", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		require.Error(t, store.SaveRecord(nil))

		record := NewRecord("rec-1", 100)
		record.Signature = nil
		require.Error(t, store.SaveRecord(record))

		loaded, err := store.LoadRecord("rec-1")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Should overwrite a record with the same id", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		record := NewRecord("rec-1", 100)
		require.NoError(t, store.SaveRecord(record))

		record.MessageName = "renamed.bin"
		require.NoError(t, store.SaveRecord(record))

		loaded, err := store.LoadRecord("rec-1")
		require.NoError(t, err)
		assert.Equal(t, "renamed.bin", loaded.MessageName)

		records, err := store.ListRecords()
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("Should not share state with callers", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		record := NewRecord("rec-1", 100)
		require.NoError(t, store.SaveRecord(record))
		record.Signature[0] = 0xff

		loaded, err := store.LoadRecord("rec-1")
		require.NoError(t, err)
		assert.Equal(t, byte(1), loaded.Signature[0])

		loaded.Signature[0] = 0xee
		again, err := store.LoadRecord("rec-1")
		require.NoError(t, err)
		assert.Equal(t, byte(1), again.Signature[0])
	})

	t.Run("Should list records sorted by creation time then id", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		empty, err := store.ListRecords()
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Len(t, empty, 0)

		require.NoError(t, store.SaveRecord(NewRecord("c", 300)))
		require.NoError(t, store.SaveRecord(NewRecord("b", 100)))
		require.NoError(t, store.SaveRecord(NewRecord("a", 100)))
		require.NoError(t, store.SaveRecord(NewRecord("d", 200)))

		records, err := store.ListRecords()
		require.NoError(t, err)
		require.Len(t, records, 4)

		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.Id)
		}
		assert.Equal(t, []string{"a", "b", "d", "c"}, ids)
	})

	t.Run("Should delete records idempotently", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.SaveRecord(NewRecord("rec-1", 100)))
		require.NoError(t, store.SaveRecord(NewRecord("rec-2", 200)))

		require.NoError(t, store.DeleteRecord("rec-1"))
		require.NoError(t, store.DeleteRecord("rec-1"))
		require.NoError(t, store.DeleteRecord("never-existed"))

		loaded, err := store.LoadRecord("rec-1")
		require.NoError(t, err)
		assert.Nil(t, loaded)

		records, err := store.ListRecords()
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "rec-2", records[0].Id)
	})

	t.Run("Should handle concurrent writers", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		const writers = 10
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := store.SaveRecord(NewRecord(fmt.Sprintf("rec-%02d", i), int64(i))); err != nil {
					t.Errorf("save record %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		records, err := store.ListRecords()
		require.NoError(t, err)
		assert.Len(t, records, writers)
	})

	t.Run("Should pass health checks until closed", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.HealthCheck())

		require.NoError(t, store.Close())
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.HealthCheck(), persistence.ErrClosed)
		assert.ErrorIs(t, store.SaveRecord(NewRecord("rec-1", 1)), persistence.ErrClosed)
		_, err := store.LoadRecord("rec-1")
		assert.ErrorIs(t, err, persistence.ErrClosed)
		_, err = store.ListRecords()
		assert.ErrorIs(t, err, persistence.ErrClosed)
		assert.ErrorIs(t, store.DeleteRecord("rec-1"), persistence.ErrClosed)
	})
}
