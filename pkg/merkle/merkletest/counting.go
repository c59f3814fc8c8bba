package merkletest

import (
	"sync/atomic"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
)

// CountingHasher wraps another Hasher and counts Hash calls.
type CountingHasher struct {
	merkle.Hasher

	calls atomic.Int64
}

// NewCountingHasher wraps h. A nil h wraps keccak256.
func NewCountingHasher(h merkle.Hasher) *CountingHasher {
	if h == nil {
		h = merkle.Keccak256Hasher{}
	}
	return &CountingHasher{Hasher: h}
}

func (c *CountingHasher) Hash(data ...[]byte) merkle.Digest {
	c.calls.Add(1)
	return c.Hasher.Hash(data...)
}

// Calls returns the number of Hash calls so far.
func (c *CountingHasher) Calls() int64 {
	return c.calls.Load()
}

// Reset sets the call count back to zero.
func (c *CountingHasher) Reset() {
	c.calls.Store(0)
}

// StubHasher is a deterministic, non-cryptographic Hasher for tests that
// need to predict digests by hand. The digest is the input length followed
// by a running byte mix; it is fixed-width like a real hash.
type StubHasher struct{}

func (StubHasher) Hash(data ...[]byte) merkle.Digest {
	var d merkle.Digest
	var n uint32
	acc := byte(0x5a)
	for _, chunk := range data {
		for _, b := range chunk {
			acc = acc*31 + b
			d[4+int(n)%(merkle.DigestSize-4)] ^= acc
			n++
		}
	}
	d[0] = byte(n >> 24)
	d[1] = byte(n >> 16)
	d[2] = byte(n >> 8)
	d[3] = byte(n)
	return d
}

func (StubHasher) Name() string { return "stub" }
