// Package storagetest holds a behavioural test suite shared by every
// storage.IFileStore backend.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
	"github.com/microbecode/file-merkle-proofs/pkg/storage"
	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

// StoreFactory returns a new, empty store. The suite closes it.
type StoreFactory func(t *testing.T) storage.IFileStore

// NewTestBatch builds a batch of count files with a correct keccak256 root.
func NewTestBatch(t *testing.T, id string, count int) *types.FileBatch {
	t.Helper()

	files := make([]types.FileData, count)
	for i := range files {
		files[i] = types.FileData{
			Name:    fmt.Sprintf("%s-file-%03d.txt", id, i),
			Content: []byte(fmt.Sprintf("content of %s file %d", id, i)),
		}
	}

	batch := &types.FileBatch{
		BatchID:       id,
		HashAlgorithm: merkle.HashKeccak256,
		Files:         files,
		UploadedAt:    time.Now().Unix(),
	}

	tree, err := merkle.BuildMerkleTreeFromContents(merkle.Keccak256Hasher{}, batch.Contents())
	require.NoError(t, err)
	batch.RootHash = tree.Root()

	return batch
}

// RequireBatchEqual compares batches treating nil and empty contents alike.
func RequireBatchEqual(t *testing.T, expected, actual *types.FileBatch) {
	t.Helper()

	require.NotNil(t, actual)
	require.Equal(t, expected.BatchID, actual.BatchID)
	require.Equal(t, expected.RootHash, actual.RootHash)
	require.Equal(t, expected.HashAlgorithm, actual.HashAlgorithm)
	require.Equal(t, expected.UploadedAt, actual.UploadedAt)
	require.Equal(t, expected.Names(), actual.Names())
	for i := range expected.Files {
		require.True(t, bytes.Equal(expected.Files[i].Content, actual.Files[i].Content),
			"content mismatch for file %d", i)
	}
}

// TestFileStore runs the shared store behaviour tests against newStore.
func TestFileStore(t *testing.T, newStore StoreFactory) {
	ctx := context.Background()

	open := func(t *testing.T) storage.IFileStore {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("load empty", func(t *testing.T) {
		s := open(t)

		loaded, err := s.LoadBatch(ctx)
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("save and load", func(t *testing.T) {
		s := open(t)
		batch := NewTestBatch(t, "save", 5)

		require.NoError(t, s.SaveBatch(ctx, batch))

		loaded, err := s.LoadBatch(ctx)
		require.NoError(t, err)
		RequireBatchEqual(t, batch, loaded)
	})

	t.Run("binary and empty contents", func(t *testing.T) {
		s := open(t)
		batch := NewTestBatch(t, "binary", 3)
		batch.Files[0].Content = []byte{0x00, 0xff, 0x00, 0x7f}
		batch.Files[1].Content = []byte{}

		require.NoError(t, s.SaveBatch(ctx, batch))

		loaded, err := s.LoadBatch(ctx)
		require.NoError(t, err)
		RequireBatchEqual(t, batch, loaded)
	})

	t.Run("save replaces previous batch", func(t *testing.T) {
		s := open(t)
		first := NewTestBatch(t, "first", 7)
		second := NewTestBatch(t, "second", 2)

		require.NoError(t, s.SaveBatch(ctx, first))
		require.NoError(t, s.SaveBatch(ctx, second))

		loaded, err := s.LoadBatch(ctx)
		require.NoError(t, err)
		RequireBatchEqual(t, second, loaded)
	})

	t.Run("save rejects invalid batch", func(t *testing.T) {
		s := open(t)

		require.Error(t, s.SaveBatch(ctx, nil))
		require.Error(t, s.SaveBatch(ctx, &types.FileBatch{BatchID: "empty"}))

		loaded, err := s.LoadBatch(ctx)
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveBatch(ctx, NewTestBatch(t, "delete", 3)))

		require.NoError(t, s.DeleteBatch(ctx))

		loaded, err := s.LoadBatch(ctx)
		require.NoError(t, err)
		assert.Nil(t, loaded)

		// Idempotent
		require.NoError(t, s.DeleteBatch(ctx))
	})

	t.Run("loaded batch is independent", func(t *testing.T) {
		s := open(t)
		batch := NewTestBatch(t, "copy", 2)
		require.NoError(t, s.SaveBatch(ctx, batch))

		// Mutating the input after save must not reach the store
		batch.Files[0].Content[0] = 'X'

		loaded, err := s.LoadBatch(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, byte('X'), loaded.Files[0].Content[0])

		loaded.Files[1].Content[0] = 'Y'
		again, err := s.LoadBatch(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, byte('Y'), again.Files[1].Content[0])
	})

	t.Run("health check", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.HealthCheck(ctx))
	})

	t.Run("close", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Close())
		require.NoError(t, s.Close(), "Close must be idempotent")

		err := s.SaveBatch(ctx, NewTestBatch(t, "closed", 1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, storage.ErrClosed))

		_, err = s.LoadBatch(ctx)
		assert.True(t, errors.Is(err, storage.ErrClosed))

		err = s.DeleteBatch(ctx)
		assert.True(t, errors.Is(err, storage.ErrClosed))

		assert.Error(t, s.HealthCheck(ctx))
	})

	t.Run("concurrent save and load", func(t *testing.T) {
		s := open(t)

		batches := make(map[string]*types.FileBatch)
		for i := 0; i < 4; i++ {
			b := NewTestBatch(t, fmt.Sprintf("concurrent-%d", i), i+1)
			batches[b.BatchID] = b
		}

		var wg sync.WaitGroup
		errs := make(chan error, 64)

		for _, b := range batches {
			wg.Add(1)
			go func(b *types.FileBatch) {
				defer wg.Done()
				for j := 0; j < 5; j++ {
					if err := s.SaveBatch(ctx, b); err != nil {
						errs <- err
						return
					}
				}
			}(b)
		}

		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					loaded, err := s.LoadBatch(ctx)
					if err != nil {
						errs <- err
						return
					}
					if loaded == nil {
						continue
					}
					expected, ok := batches[loaded.BatchID]
					if !ok || len(expected.Files) != len(loaded.Files) {
						errs <- fmt.Errorf("observed a torn batch %q with %d files", loaded.BatchID, len(loaded.Files))
						return
					}
				}
			}()
		}

		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
	})
}
