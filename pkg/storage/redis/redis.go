package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/microbecode/file-merkle-proofs/pkg/storage"
	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

// Key layout, all prefixed with RedisConfig.KeyPrefix
const (
	keyActiveBatch       = "merkle:batch:active"
	keyPrefixFile        = "merkle:file:"
	keySchemaVersion     = "merkle:metadata:schema_version"
	currentSchemaVersion = "v1"

	connectTimeout = 5 * time.Second
)

// RedisStore is an IFileStore backed by Redis, for deployments where the
// server's disk is ephemeral.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string

	// mu guards closed; batchMu orders batch replacement against reads
	mu      sync.RWMutex
	batchMu sync.RWMutex
	closed  bool
}

var _ storage.IFileStore = (*RedisStore)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "tenant-a:" gives
	// "tenant-a:merkle:batch:active".
	KeyPrefix string
}

// NewRedisStore connects to Redis and validates the stored schema version.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis file store initialized",
		"address", cfg.Address,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix,
	)

	return rs, nil
}

func (r *RedisStore) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisStore) fileKey(batchID string, index int) string {
	return r.prefixKey(fmt.Sprintf("%s%s:%08d", keyPrefixFile, batchID, index))
}

func (r *RedisStore) fileKeys(batchID string, count int) []string {
	keys := make([]string, count)
	for i := range keys {
		keys[i] = r.fileKey(batchID, i)
	}
	return keys
}

func (r *RedisStore) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	// SETNX so two servers starting together agree on one value
	if err := r.client.SetNX(ctx, schemaKey, currentSchemaVersion, 0).Err(); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	existing, err := r.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existing != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
	}
	return nil
}

func (r *RedisStore) loadMeta(ctx context.Context) (*storage.BatchMeta, error) {
	data, err := r.client.Get(ctx, r.prefixKey(keyActiveBatch)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load batch metadata: %w", err)
	}
	return storage.UnmarshalBatchMeta(data)
}

// SaveBatch writes contents in one pipeline, switches the active pointer,
// then deletes the previous batch's contents.
func (r *RedisStore) SaveBatch(ctx context.Context, batch *types.FileBatch) error {
	if err := storage.ValidateBatch(batch); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return storage.ErrClosed
	}

	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	metaBytes, err := storage.MarshalBatchMeta(storage.NewBatchMeta(batch))
	if err != nil {
		return err
	}

	previous, err := r.loadMeta(ctx)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, f := range batch.Files {
			pipe.Set(ctx, r.fileKey(batch.BatchID, i), f.Content, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write batch contents: %w", err)
	}

	if err := r.client.Set(ctx, r.prefixKey(keyActiveBatch), metaBytes, 0).Err(); err != nil {
		return fmt.Errorf("failed to activate batch %s: %w", batch.BatchID, err)
	}

	if previous != nil && previous.BatchID != batch.BatchID {
		if err := r.client.Del(ctx, r.fileKeys(previous.BatchID, len(previous.FileNames))...).Err(); err != nil {
			r.logger.Sugar().Warnw("Failed to remove previous batch contents",
				"batch_id", previous.BatchID, "error", err)
		}
	}

	r.logger.Sugar().Debugw("Saved file batch",
		"batch_id", batch.BatchID,
		"file_count", len(batch.Files),
		"root_hash", batch.RootHash.Hex(),
	)

	return nil
}

// LoadBatch reads the header then every content key with one MGET.
func (r *RedisStore) LoadBatch(ctx context.Context) (*types.FileBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, storage.ErrClosed
	}

	r.batchMu.RLock()
	defer r.batchMu.RUnlock()

	meta, err := r.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil // Not found is not an error
	}

	contents := make([][]byte, 0, len(meta.FileNames))
	if len(meta.FileNames) > 0 {
		values, err := r.client.MGet(ctx, r.fileKeys(meta.BatchID, len(meta.FileNames))...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load batch contents: %w", err)
		}

		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				r.logger.Sugar().Warnw("Batch content missing", "batch_id", meta.BatchID, "index", i)
				break
			}
			contents = append(contents, []byte(s))
		}
	}

	batch, err := meta.Assemble(contents)
	if err != nil {
		return nil, fmt.Errorf("failed to load FileBatch: %w", err)
	}
	return batch, nil
}

// DeleteBatch removes the active pointer and its contents in one transaction.
func (r *RedisStore) DeleteBatch(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return storage.ErrClosed
	}

	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	meta, err := r.loadMeta(ctx)
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}

	keys := append(r.fileKeys(meta.BatchID, len(meta.FileNames)), r.prefixKey(keyActiveBatch))
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete batch %s: %w", meta.BatchID, err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis file store closed")
	return nil
}

// HealthCheck pings Redis and checks the schema key exists.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return storage.ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}
