package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// handleUpload handles POST /upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	requestID := RequestIDFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	var req types.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	batch, err := s.node.Upload(r.Context(), req.Files, req.ExpectedRoot)
	if err != nil {
		var mismatch *RootMismatchError
		switch {
		case errors.As(err, &mismatch):
			writeJSON(w, http.StatusConflict, types.ErrorResponse{Error: err.Error(), RootHash: &mismatch.Actual})
		case errors.Is(err, merkle.ErrEmptyInput),
			errors.Is(err, ErrInvalidFileName),
			errors.Is(err, ErrDuplicateFileName):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.node.logger.Sugar().Errorw("Upload failed", "request_id", requestID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to store files")
		}
		return
	}

	writeJSON(w, http.StatusOK, types.UploadResponse{
		Message:       fmt.Sprintf("Uploaded %d files", len(batch.Files)),
		BatchID:       batch.BatchID,
		RootHash:      batch.RootHash,
		FileCount:     len(batch.Files),
		HashAlgorithm: batch.HashAlgorithm,
	})
}

// handleGetFile handles GET /file/{index}
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid file index %q", r.PathValue("index")))
		return
	}

	resp, err := s.node.GetFileProof(index)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoActiveBatch), errors.Is(err, merkle.ErrIndexOutOfRange):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			s.node.logger.Sugar().Errorw("Proof generation failed",
				"request_id", RequestIDFromContext(r.Context()), "index", index, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to generate proof")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteAll handles DELETE /delete_all
func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}

	if err := s.node.Reset(r.Context()); err != nil {
		s.node.logger.Sugar().Errorw("Reset failed", "request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete files")
		return
	}

	writeJSON(w, http.StatusOK, types.MessageResponse{Message: "All files deleted"})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	resp, err := s.node.Health(r.Context())
	if err != nil {
		s.node.logger.Sugar().Warnw("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
