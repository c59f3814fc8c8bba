package merkle

import (
	"math/bits"
)

// HashLeaf derives the leaf digest of one file: H(content).
func HashLeaf(h Hasher, content []byte) Digest {
	return h.Hash(content)
}

// HashLeaves derives leaf digests for an ordered list of file contents.
// The output order matches the input order.
func HashLeaves(h Hasher, contents [][]byte) []Digest {
	leaves := make([]Digest, len(contents))
	for i, content := range contents {
		leaves[i] = HashLeaf(h, content)
	}
	return leaves
}

// HashPair computes H(left || right).
func HashPair(h Hasher, left, right Digest) Digest {
	return h.Hash(left[:], right[:])
}

// BuildMerkleTreeFromContents hashes each content into a leaf and builds the tree.
func BuildMerkleTreeFromContents(h Hasher, contents [][]byte) (*MerkleTree, error) {
	if h == nil {
		return nil, ErrNilHasher
	}
	if len(contents) == 0 {
		return nil, ErrEmptyInput
	}
	return BuildMerkleTree(h, HashLeaves(h, contents))
}

// BuildMerkleTree creates a binary merkle tree from ordered leaf digests.
// Leaf order is significant: the same digests in another order give another root.
//
// If there's an odd number of nodes at any level, the last node is duplicated.
func BuildMerkleTree(h Hasher, leaves []Digest) (*MerkleTree, error) {
	if h == nil {
		return nil, ErrNilHasher
	}
	if len(leaves) == 0 {
		return nil, ErrEmptyInput
	}

	// Copy so later writes to the caller's slice cannot reach the tree
	currentLevel := make([]Digest, len(leaves))
	copy(currentLevel, leaves)

	levels := make([][]Digest, 0, ProofLength(len(leaves))+1)
	levels = append(levels, currentLevel)

	for len(currentLevel) > 1 {
		nextLevel := make([]Digest, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			left := currentLevel[i]
			right := left
			if i+1 < len(currentLevel) {
				right = currentLevel[i+1]
			}
			nextLevel = append(nextLevel, HashPair(h, left, right))
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &MerkleTree{
		levels: levels,
		hasher: h,
	}, nil
}

// Root returns the merkle root.
func (mt *MerkleTree) Root() Digest {
	return mt.levels[len(mt.levels)-1][0]
}

// LeafCount returns the number of leaves the tree was built from.
func (mt *MerkleTree) LeafCount() int {
	return len(mt.levels[0])
}

// Depth returns the number of combination levels above the leaves.
func (mt *MerkleTree) Depth() int {
	return len(mt.levels) - 1
}

// Leaf returns the leaf digest at index.
func (mt *MerkleTree) Leaf(index int) (Digest, error) {
	if index < 0 || index >= mt.LeafCount() {
		return Digest{}, &IndexOutOfRangeError{Index: index, LeafCount: mt.LeafCount()}
	}
	return mt.levels[0][index], nil
}

// Leaves returns a copy of the leaf digests in tree order.
func (mt *MerkleTree) Leaves() []Digest {
	out := make([]Digest, len(mt.levels[0]))
	copy(out, mt.levels[0])
	return out
}

// HashAlgorithm returns the name of the hasher the tree was built with.
func (mt *MerkleTree) HashAlgorithm() string {
	return mt.hasher.Name()
}

// GenerateProof creates a merkle proof for the leaf at the given index.
// The proof consists of sibling digests along the path from leaf to root.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	if leafIndex < 0 || leafIndex >= mt.LeafCount() {
		return nil, &IndexOutOfRangeError{Index: leafIndex, LeafCount: mt.LeafCount()}
	}

	steps := make([]ProofStep, 0, mt.Depth())
	index := leafIndex

	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		siblingIndex := index ^ 1
		position := SiblingRight
		if index%2 == 1 {
			position = SiblingLeft
		}

		// Last node of an odd level is paired with itself
		if siblingIndex >= len(currentLevel) {
			siblingIndex = index
		}

		steps = append(steps, ProofStep{
			Sibling:  currentLevel[siblingIndex],
			Position: position,
		})

		index = index / 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.levels[0][leafIndex],
		Steps:     steps,
	}, nil
}

// VerifyProof folds the proof over leaf and reports whether the result equals root.
// A malformed proof is indistinguishable from a wrong one and yields false.
func VerifyProof(h Hasher, leaf Digest, proof *MerkleProof, root Digest) bool {
	if h == nil || proof == nil {
		return false
	}

	current := leaf
	for _, step := range proof.Steps {
		switch step.Position {
		case SiblingRight:
			current = HashPair(h, current, step.Sibling)
		case SiblingLeft:
			current = HashPair(h, step.Sibling, current)
		default:
			return false
		}
	}

	return current == root
}

// VerifyProofForIndex is VerifyProof plus a check that the step positions
// encode index, so a valid proof for one leaf cannot be passed off as proof
// for another.
func VerifyProofForIndex(h Hasher, leaf Digest, index int, proof *MerkleProof, root Digest) bool {
	if proof == nil || index < 0 {
		return false
	}
	if index>>uint(len(proof.Steps)) != 0 {
		return false
	}

	for i, step := range proof.Steps {
		expected := SiblingRight
		if (index>>uint(i))&1 == 1 {
			expected = SiblingLeft
		}
		if step.Position != expected {
			return false
		}
	}

	return VerifyProof(h, leaf, proof, root)
}

// ProofLength returns ceil(log2(n)), the number of steps in every proof of an n-leaf tree.
func ProofLength(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
