package merkle

// DigestSize is the width in bytes of every digest produced by a Hasher.
const DigestSize = 32

// Digest is the fixed-width output of the hash primitive.
// It is a value type and is compared by byte equality.
type Digest [DigestSize]byte

// Position tells the verifier on which side of the running digest a proof
// sibling sits when the two are recombined.
type Position uint8

const (
	// SiblingRight means the parent is H(current || sibling).
	SiblingRight Position = iota
	// SiblingLeft means the parent is H(sibling || current).
	SiblingLeft
)

// MerkleTree is a binary merkle tree built once from an ordered list of leaf
// digests. It is never mutated after construction, so a single instance can
// be shared read-only across goroutines.
type MerkleTree struct {
	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = [root]
	levels [][]Digest

	hasher Hasher
}

// ProofStep is one level of an authentication path.
type ProofStep struct {
	// Sibling is the digest the current node is paired with at this level.
	// For the last node of an odd level it is the node's own digest.
	Sibling Digest `json:"sibling"`

	// Position is the side the sibling takes in the concatenation.
	Position Position `json:"position"`
}

// MerkleProof represents a proof that a leaf is included in the tree.
// The proof consists of sibling digests along the path from leaf to root.
type MerkleProof struct {
	// LeafIndex is the position of the leaf in the ordered leaves
	LeafIndex int `json:"leafIndex"`

	// Leaf is the digest of the leaf being proven
	Leaf Digest `json:"leaf"`

	// Steps contains the siblings from leaf to root
	// Steps[0] is the sibling of the leaf, Steps[len-1] is a child of the root
	Steps []ProofStep `json:"steps"`
}
