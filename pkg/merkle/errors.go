package merkle

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when a tree is built from zero leaves.
	ErrEmptyInput = errors.New("cannot build merkle tree from empty leaf list")

	// ErrIndexOutOfRange is matched by every *IndexOutOfRangeError.
	ErrIndexOutOfRange = errors.New("leaf index out of range")

	// ErrNilHasher is returned when no hash primitive was supplied.
	ErrNilHasher = errors.New("hasher cannot be nil")
)

// IndexOutOfRangeError reports a proof request for an index outside [0, LeafCount).
type IndexOutOfRangeError struct {
	Index     int
	LeafCount int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("leaf index %d out of bounds (tree has %d leaves)", e.Index, e.LeafCount)
}

// Is lets errors.Is(err, ErrIndexOutOfRange) match.
func (e *IndexOutOfRangeError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}
