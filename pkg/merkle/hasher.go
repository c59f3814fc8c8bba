package merkle

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
	wealdblake2b "github.com/wealdtech/go-merkletree/v2/blake2b"
	"golang.org/x/crypto/sha3"
)

// Hash algorithm names accepted by NewHasher.
const (
	HashKeccak256 = "keccak256"
	HashSHA256    = "sha256"
	HashSHA3_256  = "sha3-256"
	HashBlake2b   = "blake2b"

	// DefaultHashAlgorithm matches the Solidity-friendly keccak256 used on-chain.
	DefaultHashAlgorithm = HashKeccak256
)

// Hasher is the injectable hash primitive. Hash digests the concatenation of
// all of its arguments. Implementations must be deterministic and safe for
// concurrent use.
type Hasher interface {
	Hash(data ...[]byte) Digest
	Name() string
}

// Keccak256Hasher hashes with keccak256 (the pre-standard SHA-3 used by Ethereum).
type Keccak256Hasher struct{}

func (Keccak256Hasher) Hash(data ...[]byte) Digest {
	return Digest(crypto.Keccak256Hash(data...))
}

func (Keccak256Hasher) Name() string { return HashKeccak256 }

// SHA256Hasher hashes with SHA-256.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(data ...[]byte) Digest {
	h := sha256.New()
	for _, b := range data {
		_, _ = h.Write(b)
	}
	var d Digest
	h.Sum(d[:0])
	return d
}

func (SHA256Hasher) Name() string { return HashSHA256 }

// SHA3Hasher hashes with the standardised SHA3-256.
type SHA3Hasher struct{}

func (SHA3Hasher) Hash(data ...[]byte) Digest {
	h := sha3.New256()
	for _, b := range data {
		_, _ = h.Write(b)
	}
	var d Digest
	h.Sum(d[:0])
	return d
}

func (SHA3Hasher) Name() string { return HashSHA3_256 }

// Blake2bHasher hashes with unkeyed BLAKE2b-256.
type Blake2bHasher struct {
	impl *wealdblake2b.BLAKE2b
}

// NewBlake2bHasher creates a BLAKE2b-256 hasher.
func NewBlake2bHasher() *Blake2bHasher {
	return &Blake2bHasher{impl: wealdblake2b.New()}
}

func (b *Blake2bHasher) Hash(data ...[]byte) Digest {
	var d Digest
	copy(d[:], b.impl.Hash(data...))
	return d
}

func (b *Blake2bHasher) Name() string { return HashBlake2b }

var hasherFactories = map[string]func() Hasher{
	HashKeccak256: func() Hasher { return Keccak256Hasher{} },
	HashSHA256:    func() Hasher { return SHA256Hasher{} },
	HashSHA3_256:  func() Hasher { return SHA3Hasher{} },
	HashBlake2b:   func() Hasher { return NewBlake2bHasher() },
}

// NewHasher returns the hasher registered under name.
func NewHasher(name string) (Hasher, error) {
	factory, ok := hasherFactories[name]
	if !ok {
		return nil, fmt.Errorf("unsupported hash algorithm: %s", name)
	}
	return factory(), nil
}

// SupportedHashAlgorithms returns the registered algorithm names, sorted.
func SupportedHashAlgorithms() []string {
	names := make([]string, 0, len(hasherFactories))
	for name := range hasherFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
