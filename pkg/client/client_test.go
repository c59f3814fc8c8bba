package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/microbecode/file-merkle-proofs/pkg/logger"
	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
	"github.com/microbecode/file-merkle-proofs/pkg/node"
	"github.com/microbecode/file-merkle-proofs/pkg/storage/memory"
	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

var fastRetry = &RetryConfig{
	MaxAttempts:     3,
	InitialBackoff:  time.Millisecond,
	MaxBackoff:      5 * time.Millisecond,
	BackoffMultiple: 2.0,
}

func newTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	return l
}

// startServer runs a real node handler behind httptest
func startServer(t *testing.T, hasher merkle.Hasher) *httptest.Server {
	t.Helper()
	n, err := node.NewNode(node.Config{Logger: newTestLogger(t)}, hasher, memory.NewMemoryStore())
	require.NoError(t, err)

	srv := httptest.NewServer(n.Server().GetHandler())
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string, hasher merkle.Hasher) *Client {
	t.Helper()
	c, err := NewClient(&ClientConfig{
		ServerURL:   url,
		Hasher:      hasher,
		Logger:      newTestLogger(t),
		RetryConfig: fastRetry,
	})
	require.NoError(t, err)
	return c
}

func testFiles() []types.FileData {
	return []types.FileData{
		{Name: "c.txt", Content: []byte("charlie")},
		{Name: "a.txt", Content: []byte("alpha")},
		{Name: "e.txt", Content: []byte("echo")},
		{Name: "b.txt", Content: []byte("bravo")},
		{Name: "d.txt", Content: []byte("delta")},
	}
}

func TestNewClient_Validation(t *testing.T) {
	l := newTestLogger(t)

	_, err := NewClient(nil)
	require.Error(t, err)
	_, err = NewClient(&ClientConfig{Hasher: merkle.SHA256Hasher{}, Logger: l})
	require.Error(t, err)
	_, err = NewClient(&ClientConfig{ServerURL: "http://x", Logger: l})
	require.Error(t, err)
	_, err = NewClient(&ClientConfig{ServerURL: "http://x", Hasher: merkle.SHA256Hasher{}})
	require.Error(t, err)
}

func TestClient_UploadAndVerify(t *testing.T) {
	for _, name := range merkle.SupportedHashAlgorithms() {
		t.Run(name, func(t *testing.T) {
			hasher, err := merkle.NewHasher(name)
			require.NoError(t, err)

			srv := startServer(t, hasher)
			c := newTestClient(t, srv.URL, hasher)
			ctx := context.Background()

			result, err := c.Upload(ctx, testFiles())
			require.NoError(t, err)
			assert.Equal(t, []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"}, result.FileNames)
			assert.Equal(t, name, result.HashAlgorithm)

			for i, fileName := range result.FileNames {
				vr, err := c.VerifyFile(ctx, i, fileName, result.RootHash)
				require.NoError(t, err)
				assert.True(t, vr.Verified, "file %s", fileName)
				assert.Equal(t, fileName, vr.Name)
			}
		})
	}
}

func TestClient_UploadEmpty(t *testing.T) {
	srv := startServer(t, merkle.Keccak256Hasher{})
	c := newTestClient(t, srv.URL, merkle.Keccak256Hasher{})

	_, err := c.Upload(context.Background(), nil)
	require.ErrorIs(t, err, merkle.ErrEmptyInput)
}

func TestClient_UploadHashAlgorithmMismatch(t *testing.T) {
	srv := startServer(t, merkle.SHA256Hasher{})
	c := newTestClient(t, srv.URL, merkle.Keccak256Hasher{})

	// The server refuses the keccak root with 409
	_, err := c.Upload(context.Background(), testFiles())
	require.ErrorIs(t, err, ErrRootMismatch)
}

func TestClient_VerifyWrongRoot(t *testing.T) {
	srv := startServer(t, merkle.Keccak256Hasher{})
	c := newTestClient(t, srv.URL, merkle.Keccak256Hasher{})
	ctx := context.Background()

	result, err := c.Upload(ctx, testFiles())
	require.NoError(t, err)

	// The server has since been given a different batch
	_, err = c.Upload(ctx, []types.FileData{{Name: "a.txt", Content: []byte("ALPHA")}, {Name: "b.txt", Content: []byte("bravo")}})
	require.NoError(t, err)

	vr, err := c.VerifyFile(ctx, 0, "a.txt", result.RootHash)
	require.NoError(t, err)
	assert.False(t, vr.Verified)
}

// tamperingServer proxies a real node and lets a test rewrite proof responses
func tamperingServer(t *testing.T, rewrite func(index int, resp *types.FileProofResponse, fetch func(int) *types.FileProofResponse)) *httptest.Server {
	t.Helper()

	n, err := node.NewNode(node.Config{Logger: newTestLogger(t)}, merkle.Keccak256Hasher{}, memory.NewMemoryStore())
	require.NoError(t, err)
	inner := n.Server().GetHandler()

	fetch := func(i int) *types.FileProofResponse {
		resp, err := n.GetFileProof(i)
		require.NoError(t, err)
		return resp
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/file/{index}", func(w http.ResponseWriter, r *http.Request) {
		var index int
		_, _ = fmt.Sscanf(r.PathValue("index"), "%d", &index)
		resp := fetch(index)
		rewrite(index, resp, fetch)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.Handle("/", inner)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_VerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name    string
		rewrite func(index int, resp *types.FileProofResponse, fetch func(int) *types.FileProofResponse)
		wantErr error
	}{
		{
			name: "modified content",
			rewrite: func(_ int, resp *types.FileProofResponse, _ func(int) *types.FileProofResponse) {
				resp.Content = append(resp.Content, '!')
			},
		},
		{
			name: "modified sibling",
			rewrite: func(_ int, resp *types.FileProofResponse, _ func(int) *types.FileProofResponse) {
				resp.Proof[0].Sibling[0] ^= 0x01
			},
		},
		{
			name: "truncated proof",
			rewrite: func(_ int, resp *types.FileProofResponse, _ func(int) *types.FileProofResponse) {
				resp.Proof = resp.Proof[:len(resp.Proof)-1]
			},
		},
		{
			name: "valid proof for another index",
			rewrite: func(index int, resp *types.FileProofResponse, fetch func(int) *types.FileProofResponse) {
				other := fetch(index + 1)
				resp.Content = other.Content
				resp.Proof = other.Proof
			},
		},
		{
			name: "different file",
			rewrite: func(index int, resp *types.FileProofResponse, fetch func(int) *types.FileProofResponse) {
				*resp = *fetch(index + 1)
			},
			wantErr: ErrNameMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := tamperingServer(t, tt.rewrite)
			c := newTestClient(t, srv.URL, merkle.Keccak256Hasher{})
			ctx := context.Background()

			result, err := c.Upload(ctx, testFiles())
			require.NoError(t, err)

			vr, err := c.VerifyFile(ctx, 1, result.FileNames[1], result.RootHash)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.False(t, vr.Verified)
		})
	}
}

func TestClient_FetchProofNotFound(t *testing.T) {
	srv := startServer(t, merkle.Keccak256Hasher{})
	c := newTestClient(t, srv.URL, merkle.Keccak256Hasher{})

	_, err := c.FetchProof(context.Background(), 0)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.MessageResponse{Message: "All files deleted"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, merkle.Keccak256Hasher{})
	require.NoError(t, c.Reset(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, merkle.Keccak256Hasher{})
	err := c.Reset(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(fastRetry.MaxAttempts), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: "bad input"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, merkle.Keccak256Hasher{})
	err := c.Reset(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad input")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(&ClientConfig{
		ServerURL: srv.URL,
		Hasher:    merkle.Keccak256Hasher{},
		Logger:    newTestLogger(t),
		RetryConfig: &RetryConfig{
			MaxAttempts:     10,
			InitialBackoff:  time.Hour,
			MaxBackoff:      time.Hour,
			BackoffMultiple: 1,
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = c.Reset(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Health(t *testing.T) {
	srv := startServer(t, merkle.Keccak256Hasher{})
	c := newTestClient(t, srv.URL, merkle.Keccak256Hasher{})
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.False(t, h.HasBatch)

	result, err := c.Upload(ctx, testFiles())
	require.NoError(t, err)

	h, err = c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.HasBatch)
	assert.Equal(t, 5, h.FileCount)
	require.NotNil(t, h.RootHash)
	assert.Equal(t, result.RootHash, *h.RootHash)
}

func TestClient_HealthUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(types.HealthResponse{Status: "unhealthy", Error: "redis down"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, merkle.Keccak256Hasher{})
	h, err := c.Health(context.Background())
	require.Error(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "unhealthy", h.Status)
	assert.Equal(t, "redis down", h.Error)
}

func TestRetryConfig_NextBackoff(t *testing.T) {
	rc := RetryConfig{MaxBackoff: 300 * time.Millisecond, BackoffMultiple: 2}
	assert.Equal(t, 200*time.Millisecond, rc.nextBackoff(100*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, rc.nextBackoff(200*time.Millisecond))
}
