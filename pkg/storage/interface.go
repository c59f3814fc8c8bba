package storage

import (
	"context"

	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

// IFileStore persists the server's active file batch across restarts.
// Only file contents and batch metadata are stored; the merkle tree is
// rebuilt from contents on restore.
//
// All implementations must be thread-safe.
type IFileStore interface {
	// SaveBatch replaces any previously stored batch with batch.
	// Readers never observe a mix of the old and new batch.
	SaveBatch(ctx context.Context, batch *types.FileBatch) error

	// LoadBatch returns the stored batch.
	// Returns nil if no batch is stored, error only on storage failure.
	LoadBatch(ctx context.Context) (*types.FileBatch, error)

	// DeleteBatch removes the stored batch.
	// Idempotent - returns nil if nothing is stored.
	DeleteBatch(ctx context.Context) error

	// Close cleanly shuts down the store.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return errors.
	Close() error

	// HealthCheck verifies the store is operational.
	HealthCheck(ctx context.Context) error
}
