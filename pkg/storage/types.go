package storage

import (
	"errors"
	"fmt"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

// ErrClosed is returned by every store operation after Close.
var ErrClosed = errors.New("persistence layer is closed")

// BatchMeta is the stored header of a batch. File contents are kept under
// separate keys so large batches do not produce one oversized value.
type BatchMeta struct {
	BatchID       string        `json:"batchId"`
	RootHash      merkle.Digest `json:"rootHash"`
	HashAlgorithm string        `json:"hashAlgorithm"`
	UploadedAt    int64         `json:"uploadedAt"`

	// FileNames in leaf order; FileNames[i] belongs to content key i
	FileNames []string `json:"fileNames"`
}

// NewBatchMeta extracts the header of batch.
func NewBatchMeta(batch *types.FileBatch) *BatchMeta {
	return &BatchMeta{
		BatchID:       batch.BatchID,
		RootHash:      batch.RootHash,
		HashAlgorithm: batch.HashAlgorithm,
		UploadedAt:    batch.UploadedAt,
		FileNames:     batch.Names(),
	}
}

// Assemble joins the header with contents loaded in leaf order.
func (m *BatchMeta) Assemble(contents [][]byte) (*types.FileBatch, error) {
	if len(contents) != len(m.FileNames) {
		return nil, fmt.Errorf("batch %s is incomplete: expected %d files, found %d",
			m.BatchID, len(m.FileNames), len(contents))
	}

	files := make([]types.FileData, len(m.FileNames))
	for i, name := range m.FileNames {
		files[i] = types.FileData{Name: name, Content: contents[i]}
	}

	return &types.FileBatch{
		BatchID:       m.BatchID,
		RootHash:      m.RootHash,
		HashAlgorithm: m.HashAlgorithm,
		Files:         files,
		UploadedAt:    m.UploadedAt,
	}, nil
}

// ValidateBatch rejects batches that cannot be stored.
func ValidateBatch(batch *types.FileBatch) error {
	if batch == nil {
		return fmt.Errorf("cannot save nil FileBatch")
	}
	if batch.BatchID == "" {
		return fmt.Errorf("cannot save FileBatch without a batch ID")
	}
	if len(batch.Files) == 0 {
		return fmt.Errorf("cannot save FileBatch with no files")
	}
	return nil
}

// CopyBatch returns a deep copy of batch.
func CopyBatch(batch *types.FileBatch) *types.FileBatch {
	if batch == nil {
		return nil
	}

	files := make([]types.FileData, len(batch.Files))
	for i, f := range batch.Files {
		content := make([]byte, len(f.Content))
		copy(content, f.Content)
		files[i] = types.FileData{Name: f.Name, Content: content}
	}

	return &types.FileBatch{
		BatchID:       batch.BatchID,
		RootHash:      batch.RootHash, // array, copied by value
		HashAlgorithm: batch.HashAlgorithm,
		Files:         files,
		UploadedAt:    batch.UploadedAt,
	}
}
