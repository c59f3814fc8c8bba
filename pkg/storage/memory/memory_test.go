package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microbecode/file-merkle-proofs/pkg/storage"
	"github.com/microbecode/file-merkle-proofs/pkg/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.TestFileStore(t, func(t *testing.T) storage.IFileStore {
		return NewMemoryStore()
	})
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ms := NewMemoryStore()
	defer func() { _ = ms.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ms.SaveBatch(ctx, storagetest.NewTestBatch(t, "cancelled", 1))
	require.ErrorIs(t, err, context.Canceled)

	_, err = ms.LoadBatch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_CloseDropsData(t *testing.T) {
	ms := NewMemoryStore()
	require.NoError(t, ms.SaveBatch(context.Background(), storagetest.NewTestBatch(t, "drop", 2)))
	require.NoError(t, ms.Close())
	assert.Nil(t, ms.batch)
}
