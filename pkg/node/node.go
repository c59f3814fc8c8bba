package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
	"github.com/microbecode/file-merkle-proofs/pkg/storage"
	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

// activeBatch pairs an accepted batch with the tree built over it.
// Both are immutable once published.
type activeBatch struct {
	batch *types.FileBatch
	tree  *merkle.MerkleTree
}

// Node holds the single active file batch and answers proof queries for it.
type Node struct {
	Port int

	hasher merkle.Hasher
	store  storage.IFileStore
	server *Server
	logger *zap.Logger

	// writeMu orders store writes with the in-memory swap; mu guards active
	writeMu sync.Mutex
	mu      sync.RWMutex
	active  *activeBatch

	now func() time.Time
}

// Config holds node configuration
type Config struct {
	Port int

	// RateLimit is requests per second across all clients; <= 0 disables it
	RateLimit float64
	RateBurst int

	// MaxUploadBytes bounds the size of an upload request body
	MaxUploadBytes int64

	Logger *zap.Logger
}

// NewNode creates a node that builds trees with hasher and keeps uploads in store.
func NewNode(cfg Config, hasher merkle.Hasher, store storage.IFileStore) (*Node, error) {
	if hasher == nil {
		return nil, merkle.ErrNilHasher
	}
	if store == nil {
		return nil, fmt.Errorf("file store cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	n := &Node{
		Port:   cfg.Port,
		hasher: hasher,
		store:  store,
		logger: cfg.Logger,
		now:    time.Now,
	}
	n.server = NewServer(n, cfg)

	return n, nil
}

// Start restores the stored batch and starts the HTTP server.
func (n *Node) Start(ctx context.Context) error {
	if err := n.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore stored batch: %w", err)
	}
	return n.server.Start()
}

// Stop gracefully shuts down the HTTP server.
func (n *Node) Stop(ctx context.Context) error {
	return n.server.Stop(ctx)
}

// Server returns the node's HTTP server.
func (n *Node) Server() *Server {
	return n.server
}

// HashAlgorithm returns the name of the node's hasher.
func (n *Node) HashAlgorithm() string {
	return n.hasher.Name()
}

func validateFiles(files []types.FileData) error {
	if len(files) == 0 {
		return fmt.Errorf("upload contains no files: %w", merkle.ErrEmptyInput)
	}

	seen := make(map[string]struct{}, len(files))
	for i, f := range files {
		if f.Name == "" {
			return fmt.Errorf("%w: file %d has an empty name", ErrInvalidFileName, i)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateFileName, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Upload replaces the active batch with files, in the given order.
//
// When expectedRoot is non-nil and differs from the computed root, nothing
// is stored and a *RootMismatchError is returned.
func (n *Node) Upload(ctx context.Context, files []types.FileData, expectedRoot *merkle.Digest) (*types.FileBatch, error) {
	if err := validateFiles(files); err != nil {
		return nil, err
	}

	batch := storage.CopyBatch(&types.FileBatch{
		BatchID:       uuid.NewString(),
		HashAlgorithm: n.hasher.Name(),
		Files:         files,
		UploadedAt:    n.now().Unix(),
	})

	// Build outside the locks; proofs keep being served from the old tree
	tree, err := merkle.BuildMerkleTreeFromContents(n.hasher, batch.Contents())
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}
	batch.RootHash = tree.Root()

	if expectedRoot != nil && *expectedRoot != batch.RootHash {
		n.logger.Sugar().Warnw("Rejected upload with mismatched root",
			"expected_root", expectedRoot.Hex(),
			"computed_root", batch.RootHash.Hex(),
			"file_count", len(files),
		)
		return nil, &RootMismatchError{Expected: *expectedRoot, Actual: batch.RootHash}
	}

	n.writeMu.Lock()
	defer n.writeMu.Unlock()

	if err := n.store.SaveBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to store batch: %w", err)
	}

	n.mu.Lock()
	n.active = &activeBatch{batch: batch, tree: tree}
	n.mu.Unlock()

	n.logger.Sugar().Infow("Accepted file batch",
		"batch_id", batch.BatchID,
		"file_count", len(batch.Files),
		"root_hash", batch.RootHash.Hex(),
		"hash_algorithm", batch.HashAlgorithm,
	)

	return batch, nil
}

func (n *Node) current() *activeBatch {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.active
}

// GetFileProof returns the file at index together with its inclusion proof.
func (n *Node) GetFileProof(index int) (*types.FileProofResponse, error) {
	active := n.current()
	if active == nil {
		return nil, ErrNoActiveBatch
	}

	proof, err := active.tree.GenerateProof(index)
	if err != nil {
		return nil, err
	}

	file := active.batch.Files[index]
	content := make([]byte, len(file.Content))
	copy(content, file.Content)

	return &types.FileProofResponse{
		Index:         index,
		Name:          file.Name,
		Content:       content,
		LeafCount:     active.tree.LeafCount(),
		HashAlgorithm: active.tree.HashAlgorithm(),
		Proof:         proof.Steps,
	}, nil
}

// ActiveBatchInfo returns the batch ID, root and file count of the active batch.
// ok is false when nothing has been uploaded.
func (n *Node) ActiveBatchInfo() (batchID string, root merkle.Digest, fileCount int, ok bool) {
	active := n.current()
	if active == nil {
		return "", merkle.Digest{}, 0, false
	}
	return active.batch.BatchID, active.tree.Root(), active.tree.LeafCount(), true
}

// Reset drops the active batch from memory and from the store.
func (n *Node) Reset(ctx context.Context) error {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()

	if err := n.store.DeleteBatch(ctx); err != nil {
		return fmt.Errorf("failed to delete stored batch: %w", err)
	}

	n.mu.Lock()
	n.active = nil
	n.mu.Unlock()

	n.logger.Sugar().Infow("Deleted all files")
	return nil
}

// Restore loads the stored batch, if any, and rebuilds its tree.
// A batch stored under another hash algorithm, or whose rebuilt root
// differs from the stored one, is an error.
func (n *Node) Restore(ctx context.Context) error {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()

	batch, err := n.store.LoadBatch(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored batch: %w", err)
	}
	if batch == nil {
		n.logger.Sugar().Infow("No stored batch to restore")
		return nil
	}

	if batch.HashAlgorithm != n.hasher.Name() {
		return fmt.Errorf("stored batch %s uses hash algorithm %s but server is configured for %s",
			batch.BatchID, batch.HashAlgorithm, n.hasher.Name())
	}

	tree, err := merkle.BuildMerkleTreeFromContents(n.hasher, batch.Contents())
	if err != nil {
		return fmt.Errorf("failed to rebuild merkle tree: %w", err)
	}
	if tree.Root() != batch.RootHash {
		return fmt.Errorf("stored batch %s is corrupt: %w",
			batch.BatchID, &RootMismatchError{Expected: batch.RootHash, Actual: tree.Root()})
	}

	n.mu.Lock()
	n.active = &activeBatch{batch: batch, tree: tree}
	n.mu.Unlock()

	n.logger.Sugar().Infow("Restored file batch",
		"batch_id", batch.BatchID,
		"file_count", len(batch.Files),
		"root_hash", batch.RootHash.Hex(),
	)
	return nil
}

// Health reports the active batch and whether the store is reachable.
func (n *Node) Health(ctx context.Context) (*types.HealthResponse, error) {
	resp := &types.HealthResponse{
		Status:        "ok",
		HashAlgorithm: n.hasher.Name(),
	}

	if _, root, count, ok := n.ActiveBatchInfo(); ok {
		resp.HasBatch = true
		resp.FileCount = count
		resp.RootHash = &root
	}

	if err := n.store.HealthCheck(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		return resp, err
	}
	return resp, nil
}
