package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

var (
	// ErrRootMismatch is returned when the server's root differs from the locally computed one.
	ErrRootMismatch = errors.New("server root does not match local root")

	// ErrNameMismatch is returned when the server answers with a different file than requested.
	ErrNameMismatch = errors.New("server returned a different file than requested")

	// ErrHashAlgorithmMismatch is returned when client and server hash differently.
	ErrHashAlgorithmMismatch = errors.New("server hash algorithm does not match client")
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// ClientConfig holds the configuration for the merkle client
type ClientConfig struct {
	ServerURL string
	Hasher    merkle.Hasher
	Logger    *zap.Logger

	// Optional
	HTTPClient  *http.Client
	RetryConfig *RetryConfig
}

// Client talks to a merkle server and checks everything it returns.
type Client struct {
	serverURL   string
	hasher      merkle.Hasher
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *zap.Logger
}

// UploadResult describes an accepted upload.
type UploadResult struct {
	BatchID       string
	RootHash      merkle.Digest
	HashAlgorithm string

	// FileNames in leaf order; FileNames[i] is served at /file/i
	FileNames []string
}

// VerifyResult is the outcome of checking one file against the stored root.
type VerifyResult struct {
	Verified bool
	Index    int
	Name     string
	Content  []byte
	Proof    *merkle.MerkleProof
}

const defaultHTTPTimeout = 60 * time.Second

// NewClient creates a new merkle client
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if config.Hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	retryConfig := DefaultRetryConfig
	if config.RetryConfig != nil {
		retryConfig = *config.RetryConfig
	}
	if retryConfig.MaxAttempts < 1 {
		retryConfig.MaxAttempts = 1
	}

	return &Client{
		serverURL:   strings.TrimRight(config.ServerURL, "/"),
		hasher:      config.Hasher,
		httpClient:  httpClient,
		retryConfig: retryConfig,
		logger:      config.Logger,
	}, nil
}

// Hasher returns the hasher used for local tree construction and verification.
func (c *Client) Hasher() merkle.Hasher {
	return c.hasher
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// do sends one request, retrying transport errors and transient statuses.
// On a 2xx the body is decoded into out.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}, attempts int) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal %s %s request", method, path)
		}
	}

	url := c.serverURL + path
	backoff := c.retryConfig.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff); err != nil {
				return errors.Wrapf(err, "%s %s cancelled after %d attempts (last error: %v)", method, path, attempt, lastErr)
			}
			backoff = c.retryConfig.nextBackoff(backoff)
		}

		retry, err := c.attempt(ctx, method, url, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}

		c.logger.Sugar().Debugw("Request failed, retrying",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return errors.Wrapf(lastErr, "%s %s failed after %d attempts", method, path, attempts)
}

// attempt performs a single round trip and reports whether a failure is worth retrying.
func (c *Client) attempt(ctx context.Context, method, url string, payload []byte, out interface{}) (bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return false, errors.Wrapf(err, "failed to create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, errors.Wrapf(err, "request to %s failed", url)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, errors.Wrapf(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var errResp types.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			statusErr.Message = errResp.Error
		}
		// Health reports a 503 with a useful body
		if out != nil && resp.StatusCode == http.StatusServiceUnavailable {
			_ = json.Unmarshal(data, out)
		}
		return isRetryableStatus(resp.StatusCode), statusErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return false, errors.Wrapf(err, "failed to decode response")
		}
	}
	return false, nil
}

// BuildLocalTree sorts files by name and builds the tree the server is
// expected to build over the same upload.
func (c *Client) BuildLocalTree(files []types.FileData) ([]types.FileData, *merkle.MerkleTree, error) {
	sorted := types.SortFilesByName(files)
	if err := types.ValidateFileNames(sorted); err != nil {
		return nil, nil, err
	}

	contents := make([][]byte, len(sorted))
	for i, f := range sorted {
		contents[i] = f.Content
	}

	tree, err := merkle.BuildMerkleTreeFromContents(c.hasher, contents)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to build local merkle tree")
	}
	return sorted, tree, nil
}

// Upload sorts files by name, uploads them together with the locally
// computed root, and checks the server agrees on that root.
func (c *Client) Upload(ctx context.Context, files []types.FileData) (*UploadResult, error) {
	sorted, tree, err := c.BuildLocalTree(files)
	if err != nil {
		return nil, err
	}
	root := tree.Root()

	c.logger.Sugar().Infow("Uploading files",
		"file_count", len(sorted),
		"root_hash", root.Hex(),
		"hash_algorithm", c.hasher.Name(),
	)

	var resp types.UploadResponse
	req := types.UploadRequest{Files: sorted, ExpectedRoot: &root}
	if err := c.do(ctx, http.MethodPost, "/upload", req, &resp, c.retryConfig.MaxAttempts); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
			return nil, errors.Wrapf(ErrRootMismatch, "server rejected upload: %s", statusErr.Message)
		}
		return nil, errors.Wrapf(err, "failed to upload %d files", len(sorted))
	}

	if resp.HashAlgorithm != c.hasher.Name() {
		return nil, errors.Wrapf(ErrHashAlgorithmMismatch, "server uses %s, client uses %s", resp.HashAlgorithm, c.hasher.Name())
	}
	if resp.RootHash != root {
		return nil, errors.Wrapf(ErrRootMismatch, "local %s, server %s", root.Hex(), resp.RootHash.Hex())
	}

	return &UploadResult{
		BatchID:       resp.BatchID,
		RootHash:      root,
		HashAlgorithm: c.hasher.Name(),
		FileNames:     (&types.FileBatch{Files: sorted}).Names(),
	}, nil
}

// FetchProof requests the file and proof at index without checking them.
func (c *Client) FetchProof(ctx context.Context, index int) (*types.FileProofResponse, error) {
	var resp types.FileProofResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/file/%d", index), nil, &resp, c.retryConfig.MaxAttempts); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch file %d", index)
	}
	return &resp, nil
}

// VerifyFile fetches the file at index and checks it against root.
//
// A proof that does not verify is reported as Verified=false. Errors are
// reserved for transport failures and responses that are not about the
// requested file at all.
func (c *Client) VerifyFile(ctx context.Context, index int, name string, root merkle.Digest) (*VerifyResult, error) {
	resp, err := c.FetchProof(ctx, index)
	if err != nil {
		return nil, err
	}

	if resp.Name != name {
		return nil, errors.Wrapf(ErrNameMismatch, "requested %q at index %d, got %q", name, index, resp.Name)
	}
	if resp.HashAlgorithm != c.hasher.Name() {
		return nil, errors.Wrapf(ErrHashAlgorithmMismatch, "server uses %s, client uses %s", resp.HashAlgorithm, c.hasher.Name())
	}

	leaf := merkle.HashLeaf(c.hasher, resp.Content)
	proof := &merkle.MerkleProof{LeafIndex: index, Leaf: leaf, Steps: resp.Proof}
	verified := resp.Index == index && merkle.VerifyProofForIndex(c.hasher, leaf, index, proof, root)

	c.logger.Sugar().Infow("Verified file",
		"name", name,
		"index", index,
		"verified", verified,
		"root_hash", root.Hex(),
	)

	return &VerifyResult{
		Verified: verified,
		Index:    index,
		Name:     resp.Name,
		Content:  resp.Content,
		Proof:    proof,
	}, nil
}

// Reset deletes every file on the server.
func (c *Client) Reset(ctx context.Context) error {
	var resp types.MessageResponse
	if err := c.do(ctx, http.MethodDelete, "/delete_all", nil, &resp, c.retryConfig.MaxAttempts); err != nil {
		return errors.Wrapf(err, "failed to delete files on server")
	}
	return nil
}

// Health returns the server's health document. An unhealthy server yields
// both the document and an error.
func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var resp types.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp, 1); err != nil {
		if resp.Status != "" {
			return &resp, err
		}
		return nil, errors.Wrapf(err, "health check failed")
	}
	return &resp, nil
}
