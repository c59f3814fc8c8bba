package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/microbecode/file-merkle-proofs/pkg/storage"
	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

// MemoryStore is an in-memory implementation of IFileStore.
//
// All data is lost when the process exits. Batches are deep copied on the
// way in and out so callers cannot mutate stored contents.
type MemoryStore struct {
	mu     sync.RWMutex
	batch  *types.FileBatch
	closed bool
}

// Ensure MemoryStore implements IFileStore
var _ storage.IFileStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory file store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveBatch replaces the stored batch.
func (m *MemoryStore) SaveBatch(ctx context.Context, batch *types.FileBatch) error {
	if err := storage.ValidateBatch(batch); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return storage.ErrClosed
	}

	m.batch = storage.CopyBatch(batch)
	return nil
}

// LoadBatch returns a copy of the stored batch, or nil if there is none.
func (m *MemoryStore) LoadBatch(ctx context.Context) (*types.FileBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, storage.ErrClosed
	}

	return storage.CopyBatch(m.batch), nil
}

// DeleteBatch drops the stored batch.
func (m *MemoryStore) DeleteBatch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return storage.ErrClosed
	}

	m.batch = nil
	return nil
}

// Close marks the store closed and releases the batch.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.batch = nil
	return nil
}

// HealthCheck reports an error once the store is closed.
func (m *MemoryStore) HealthCheck(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("memory store health check failed: %w", storage.ErrClosed)
	}
	return nil
}
