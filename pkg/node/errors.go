package node

import (
	"errors"
	"fmt"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
)

var (
	// ErrNoActiveBatch is returned by proof queries before any upload.
	ErrNoActiveBatch = errors.New("no files have been uploaded")

	// ErrInvalidFileName is returned for an upload containing an empty name.
	ErrInvalidFileName = errors.New("invalid file name")

	// ErrDuplicateFileName is returned when two files in one upload share a name.
	ErrDuplicateFileName = errors.New("duplicate file name")

	// ErrRootMismatch is matched by every *RootMismatchError.
	ErrRootMismatch = errors.New("merkle root mismatch")
)

// RootMismatchError reports that the root computed over an upload differs
// from the root the uploader expected.
type RootMismatchError struct {
	Expected merkle.Digest
	Actual   merkle.Digest
}

func (e *RootMismatchError) Error() string {
	return fmt.Sprintf("merkle root mismatch: expected %s, computed %s", e.Expected.Hex(), e.Actual.Hex())
}

func (e *RootMismatchError) Is(target error) bool {
	return target == ErrRootMismatch
}
