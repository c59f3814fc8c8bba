// Package clientstate persists what the client must remember after its
// local copies are gone: the root it trusts and where each file lives.
package clientstate

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
)

// ErrUnknownFile is returned by IndexOf for a name that was not uploaded.
var ErrUnknownFile = errors.New("file not found in client state")

// State is the client's record of its last upload.
type State struct {
	RootHash      *merkle.Digest `json:"rootHash,omitempty"`
	HashAlgorithm string         `json:"hashAlgorithm,omitempty"`
	BatchID       string         `json:"batchId,omitempty"`

	// FileNames in leaf order
	FileNames []string `json:"fileNames,omitempty"`

	UploadedAt int64 `json:"uploadedAt,omitempty"`
}

// IsEmpty reports whether nothing has been uploaded.
func (s *State) IsEmpty() bool {
	return s.RootHash == nil
}

// IndexOf returns the leaf index of name.
func (s *State) IndexOf(name string) (int, error) {
	for i, n := range s.FileNames {
		if n == name {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrUnknownFile, "%q", name)
}

// Load reads the state at path. A missing file yields an empty state.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read client state %s", path)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "failed to parse client state %s", path)
	}
	return &s, nil
}

// Save writes the state to path atomically, creating parent directories.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal client state")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create state directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary state file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to write client state")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to sync client state")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close client state")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to replace client state %s", path)
	}
	return nil
}

// Clear removes the state file. A missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "failed to remove client state %s", path)
	}
	return nil
}
