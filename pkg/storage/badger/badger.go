package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/microbecode/file-merkle-proofs/pkg/storage"
	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

// Key layout
const (
	keyActiveBatch       = "batch:active"
	keyPrefixFile        = "file:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

// BadgerStore is a durable, disk-based IFileStore.
//
// Each batch's contents live under "file:<batchID>:<index>". The batch
// becomes visible when "batch:active" is switched to point at it, so a
// reader sees either the previous batch or the new one in full.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup

	// mu guards closed; writeMu serialises batch replacement
	mu      sync.RWMutex
	writeMu sync.Mutex
	closed  bool
}

var _ storage.IFileStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a Badger database at dataPath.
// A background goroutine runs value log GC until Close.
func NewBadgerStore(dataPath string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
	}

	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("Badger file store initialized", "path", absPath)

	return bs, nil
}

func (b *BadgerStore) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		existing, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}
		if string(existing) != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func filePrefix(batchID string) []byte {
	return []byte(keyPrefixFile + batchID + ":")
}

func fileKey(batchID string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", keyPrefixFile, batchID, index))
}

// SaveBatch writes the new contents, switches the active pointer, then
// removes the previous batch's contents.
func (b *BadgerStore) SaveBatch(ctx context.Context, batch *types.FileBatch) error {
	if err := storage.ValidateBatch(batch); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return storage.ErrClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	metaBytes, err := storage.MarshalBatchMeta(storage.NewBatchMeta(batch))
	if err != nil {
		return err
	}

	previous, err := b.loadMeta()
	if err != nil {
		return err
	}

	// Contents go through a WriteBatch so large uploads are not bounded by
	// the single-transaction size limit.
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for i, f := range batch.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wb.Set(fileKey(batch.BatchID, i), f.Content); err != nil {
			return fmt.Errorf("failed to stage file %d: %w", i, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to write batch contents: %w", err)
	}

	if err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyActiveBatch), metaBytes)
	}); err != nil {
		return fmt.Errorf("failed to activate batch %s: %w", batch.BatchID, err)
	}

	if previous != nil && previous.BatchID != batch.BatchID {
		if err := b.deleteFiles(previous.BatchID); err != nil {
			// The new batch is already active; stale contents are only wasted space
			b.logger.Sugar().Warnw("Failed to remove previous batch contents",
				"batch_id", previous.BatchID, "error", err)
		}
	}

	b.logger.Sugar().Debugw("Saved file batch",
		"batch_id", batch.BatchID,
		"file_count", len(batch.Files),
		"root_hash", batch.RootHash.Hex(),
	)

	return nil
}

// loadMeta reads the active batch header, nil if none.
func (b *BadgerStore) loadMeta() (*storage.BatchMeta, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyActiveBatch))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load batch metadata: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return storage.UnmarshalBatchMeta(data)
}

// LoadBatch reads header and contents from one snapshot.
func (b *BadgerStore) LoadBatch(ctx context.Context) (*types.FileBatch, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, storage.ErrClosed
	}

	var batch *types.FileBatch
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyActiveBatch))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		metaBytes, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		meta, err := storage.UnmarshalBatchMeta(metaBytes)
		if err != nil {
			return err
		}

		contents := make([][]byte, 0, len(meta.FileNames))
		for i := range meta.FileNames {
			if err := ctx.Err(); err != nil {
				return err
			}

			fileItem, err := txn.Get(fileKey(meta.BatchID, i))
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read file %d: %w", i, err)
			}

			content, err := fileItem.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read file %d value: %w", i, err)
			}
			contents = append(contents, content)
		}

		batch, err = meta.Assemble(contents)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load FileBatch: %w", err)
	}

	return batch, nil
}

// DeleteBatch clears the active pointer and the contents it referenced.
func (b *BadgerStore) DeleteBatch(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return storage.ErrClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	meta, err := b.loadMeta()
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}

	if err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(keyActiveBatch))
	}); err != nil {
		return fmt.Errorf("failed to delete active batch: %w", err)
	}

	return b.deleteFiles(meta.BatchID)
}

func (b *BadgerStore) deleteFiles(batchID string) error {
	var keys [][]byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = filePrefix(batchID)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list contents of batch %s: %w", batchID, err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("failed to stage delete: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to delete contents of batch %s: %w", batchID, err)
	}
	return nil
}

// Close stops GC and closes the database.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger file store closed")
	return nil
}

// HealthCheck verifies the database is readable and initialised.
func (b *BadgerStore) HealthCheck(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return storage.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
