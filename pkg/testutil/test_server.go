package testutil

import (
	"context"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/microbecode/file-merkle-proofs/pkg/logger"
	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
	"github.com/microbecode/file-merkle-proofs/pkg/node"
	"github.com/microbecode/file-merkle-proofs/pkg/storage"
	"github.com/microbecode/file-merkle-proofs/pkg/storage/badger"
	"github.com/microbecode/file-merkle-proofs/pkg/storage/memory"
)

// TestServer is a merkle node served through httptest
type TestServer struct {
	Node   *node.Node
	Server *httptest.Server
	URL    string
	Store  storage.IFileStore
	Hasher merkle.Hasher

	// DataDir is set for badger-backed servers and survives Restart
	DataDir string

	logger *zap.Logger
}

// NewTestServer starts a node backed by an in-memory store
func NewTestServer(t *testing.T, hasher merkle.Hasher) *TestServer {
	t.Helper()
	ts := &TestServer{Hasher: hasher, logger: NewTestLogger(t)}
	ts.start(t, memory.NewMemoryStore())
	t.Cleanup(ts.Close)
	return ts
}

// NewBadgerTestServer starts a node backed by badger in a temporary directory
func NewBadgerTestServer(t *testing.T, hasher merkle.Hasher) *TestServer {
	t.Helper()
	ts := &TestServer{Hasher: hasher, DataDir: t.TempDir(), logger: NewTestLogger(t)}
	ts.start(t, ts.openBadger(t))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *TestServer) openBadger(t *testing.T) storage.IFileStore {
	t.Helper()
	store, err := badger.NewBadgerStore(ts.DataDir, ts.logger)
	if err != nil {
		t.Fatalf("Failed to open badger store: %v", err)
	}
	return store
}

func (ts *TestServer) start(t *testing.T, store storage.IFileStore) {
	t.Helper()
	n, err := node.NewNode(node.Config{Logger: ts.logger}, ts.Hasher, store)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}
	if err := n.Restore(context.Background()); err != nil {
		t.Fatalf("Failed to restore node: %v", err)
	}

	ts.Node = n
	ts.Store = store
	ts.Server = httptest.NewServer(n.Server().GetHandler())
	ts.URL = ts.Server.URL
}

// Restart stops the server and brings up a fresh node on the same badger
// directory. The URL changes.
func (ts *TestServer) Restart(t *testing.T) {
	t.Helper()
	if ts.DataDir == "" {
		t.Fatalf("Restart requires a badger-backed test server")
	}
	ts.Close()
	ts.start(t, ts.openBadger(t))
}

// Close shuts down the HTTP server and closes the store
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Store != nil {
		if err := ts.Store.Close(); err != nil {
			ts.logger.Sugar().Warnw("Failed to close test store", "error", err)
		}
	}
}

// NewTestLogger creates a quiet logger for tests
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return l
}
