// Package merkletest holds helpers for testing code built on package merkle.
package merkletest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
)

// HasherFactory returns a fresh hasher for each subtest.
type HasherFactory func() merkle.Hasher

// TestHasherCompliance checks the properties the tree relies on:
// determinism, sensitivity to input and to argument order, and that
// multi-argument hashing equals hashing the concatenation.
func TestHasherCompliance(t *testing.T, f HasherFactory) {
	t.Run("hash is deterministic", func(t *testing.T) {
		t.Parallel()

		h := f()
		require.Equal(t, h.Hash([]byte("deterministic_data")), h.Hash([]byte("deterministic_data")))
	})

	t.Run("hash is not zero", func(t *testing.T) {
		t.Parallel()

		h := f()
		require.False(t, h.Hash([]byte("hello")).IsZero())
		require.False(t, h.Hash(nil).IsZero())
	})

	t.Run("hash respects input", func(t *testing.T) {
		t.Parallel()

		h := f()
		require.NotEqual(t, h.Hash([]byte("hello")), h.Hash([]byte("hellp")))
	})

	t.Run("multiple arguments hash their concatenation", func(t *testing.T) {
		t.Parallel()

		h := f()
		left := bytes.Repeat([]byte{0xaa}, merkle.DigestSize)
		right := bytes.Repeat([]byte{0x55}, merkle.DigestSize)
		joined := append(append([]byte{}, left...), right...)

		require.Equal(t, h.Hash(joined), h.Hash(left, right))
	})

	t.Run("pair hashing respects order", func(t *testing.T) {
		t.Parallel()

		h := f()
		a := h.Hash([]byte("a"))
		b := h.Hash([]byte("b"))
		require.NotEqual(t, merkle.HashPair(h, a, b), merkle.HashPair(h, b, a))
	})

	t.Run("separate instances agree", func(t *testing.T) {
		t.Parallel()

		h1 := f()
		h2 := f()
		require.Equal(t, h1.Name(), h2.Name())
		require.Equal(t, h1.Hash([]byte("same")), h2.Hash([]byte("same")))
	})

	t.Run("safe for concurrent use", func(t *testing.T) {
		t.Parallel()

		h := f()
		want := h.Hash([]byte("concurrent"))

		results := make(chan merkle.Digest, 8)
		for i := 0; i < cap(results); i++ {
			go func() {
				results <- h.Hash([]byte("concurrent"))
			}()
		}
		for i := 0; i < cap(results); i++ {
			require.Equal(t, want, <-results)
		}
	})
}
