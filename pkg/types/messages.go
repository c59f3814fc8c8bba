package types

import "github.com/microbecode/file-merkle-proofs/pkg/merkle"

// UploadRequest is the body of POST /upload
type UploadRequest struct {
	Files []FileData `json:"files"`

	// ExpectedRoot is the root the client computed locally. When set, the
	// server refuses the batch if its own root differs.
	ExpectedRoot *merkle.Digest `json:"expectedRoot,omitempty"`
}

// UploadResponse is returned by POST /upload
type UploadResponse struct {
	Message       string        `json:"message"`
	BatchID       string        `json:"batchId"`
	RootHash      merkle.Digest `json:"rootHash"`
	FileCount     int           `json:"fileCount"`
	HashAlgorithm string        `json:"hashAlgorithm"`
}

// FileProofResponse is returned by GET /file/{index}
type FileProofResponse struct {
	Index         int                `json:"index"`
	Name          string             `json:"name"`
	Content       []byte             `json:"content"`
	LeafCount     int                `json:"leafCount"`
	HashAlgorithm string             `json:"hashAlgorithm"`
	Proof         []merkle.ProofStep `json:"proof"`
}

// MerkleProof rebuilds the core proof value for the returned index.
// The leaf is left zero: the caller must derive it from Content.
func (r *FileProofResponse) MerkleProof() *merkle.MerkleProof {
	return &merkle.MerkleProof{
		LeafIndex: r.Index,
		Steps:     r.Proof,
	}
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status        string         `json:"status"`
	HasBatch      bool           `json:"hasBatch"`
	FileCount     int            `json:"fileCount"`
	RootHash      *merkle.Digest `json:"rootHash,omitempty"`
	HashAlgorithm string         `json:"hashAlgorithm"`
	Error         string         `json:"error,omitempty"`
}

// MessageResponse carries a plain status message
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`

	// RootHash is set when an upload was refused for a root mismatch
	RootHash *merkle.Digest `json:"rootHash,omitempty"`
}
