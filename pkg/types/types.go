package types

import (
	"fmt"
	"sort"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
)

// FileData is one named file as it crosses the upload boundary.
type FileData struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// FileBatch is the set of files uploaded together. File order is leaf order.
type FileBatch struct {
	// BatchID identifies this upload in logs and storage
	BatchID string `json:"batchId"`

	// RootHash is the merkle root computed when the batch was accepted
	RootHash merkle.Digest `json:"rootHash"`

	// HashAlgorithm names the hasher the root was computed with
	HashAlgorithm string `json:"hashAlgorithm"`

	// Files in leaf order
	Files []FileData `json:"files"`

	// UploadedAt is the Unix timestamp when the batch was accepted
	UploadedAt int64 `json:"uploadedAt"`
}

// Contents returns the file contents in leaf order.
func (b *FileBatch) Contents() [][]byte {
	contents := make([][]byte, len(b.Files))
	for i, f := range b.Files {
		contents[i] = f.Content
	}
	return contents
}

// Names returns the file names in leaf order.
func (b *FileBatch) Names() []string {
	names := make([]string, len(b.Files))
	for i, f := range b.Files {
		names[i] = f.Name
	}
	return names
}

// SortFilesByName returns a copy of files ordered by name, which fixes the
// leaf index of each file for a batch.
func SortFilesByName(files []FileData) []FileData {
	sorted := make([]FileData, len(files))
	copy(sorted, files)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	return sorted
}

// ValidateFileNames rejects empty and repeated names.
func ValidateFileNames(files []FileData) error {
	seen := make(map[string]struct{}, len(files))
	for i, f := range files {
		if f.Name == "" {
			return fmt.Errorf("file %d has an empty name", i)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("duplicate file name: %s", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}
