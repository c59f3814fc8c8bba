package testutil

import (
	"testing"
	"time"

	"github.com/microbecode/file-merkle-proofs/pkg/client"
	"github.com/microbecode/file-merkle-proofs/pkg/fixtures"
	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

// FastRetryConfig keeps retrying tests quick
var FastRetryConfig = client.RetryConfig{
	MaxAttempts:     3,
	InitialBackoff:  time.Millisecond,
	MaxBackoff:      5 * time.Millisecond,
	BackoffMultiple: 2,
}

// NewTestClient creates a client for serverURL using hasher
func NewTestClient(t *testing.T, serverURL string, hasher merkle.Hasher) *client.Client {
	t.Helper()
	retry := FastRetryConfig
	c, err := client.NewClient(&client.ClientConfig{
		ServerURL:   serverURL,
		Hasher:      hasher,
		Logger:      NewTestLogger(t),
		RetryConfig: &retry,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

// CreateTestFiles generates count reproducible files of size bytes
func CreateTestFiles(t *testing.T, count, size int) []types.FileData {
	t.Helper()
	files, err := fixtures.Generate(fixtures.Options{Count: count, Size: size, Seed: uint64(count)})
	if err != nil {
		t.Fatalf("Failed to generate files: %v", err)
	}
	return files
}
