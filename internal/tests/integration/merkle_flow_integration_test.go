package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microbecode/file-merkle-proofs/pkg/client"
	"github.com/microbecode/file-merkle-proofs/pkg/clientstate"
	"github.com/microbecode/file-merkle-proofs/pkg/fixtures"
	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
	"github.com/microbecode/file-merkle-proofs/pkg/testutil"
)

// Test_MerkleFlowIntegration exercises upload, local deletion and later
// verification against a real node
func Test_MerkleFlowIntegration(t *testing.T) {
	for _, name := range merkle.SupportedHashAlgorithms() {
		t.Run(name, func(t *testing.T) {
			hasher, err := merkle.NewHasher(name)
			require.NoError(t, err)
			testOffloadAndVerify(t, hasher)
		})
	}
}

func testOffloadAndVerify(t *testing.T, hasher merkle.Hasher) {
	ctx := context.Background()
	ts := testutil.NewTestServer(t, hasher)
	mc := testutil.NewTestClient(t, ts.URL, hasher)

	dir := t.TempDir()
	statePath := t.TempDir() + "/state.json"

	generated := testutil.CreateTestFiles(t, 7, 256)
	names, err := fixtures.WriteFiles(dir, generated)
	require.NoError(t, err)

	files, err := fixtures.ReadFiles(dir, names)
	require.NoError(t, err)

	result, err := mc.Upload(ctx, files)
	require.NoError(t, err)

	root := result.RootHash
	require.NoError(t, (&clientstate.State{
		RootHash:      &root,
		HashAlgorithm: result.HashAlgorithm,
		BatchID:       result.BatchID,
		FileNames:     result.FileNames,
	}).Save(statePath))

	// The client keeps only the state file from here on
	require.NoError(t, fixtures.RemoveFiles(dir, names))

	state, err := clientstate.Load(statePath)
	require.NoError(t, err)
	require.False(t, state.IsEmpty())
	assert.Equal(t, root, *state.RootHash)

	byName := make(map[string][]byte, len(generated))
	for _, f := range generated {
		byName[f.Name] = f.Content
	}

	for _, name := range state.FileNames {
		index, err := state.IndexOf(name)
		require.NoError(t, err)

		res, err := mc.VerifyFile(ctx, index, name, *state.RootHash)
		require.NoError(t, err)
		assert.True(t, res.Verified, "file %s should verify", name)
		assert.Equal(t, byName[name], res.Content)
		assert.Len(t, res.Proof.Steps, merkle.ProofLength(len(state.FileNames)))
	}
}

// Test_SingleFileIntegration checks the one-leaf tree end to end
func Test_SingleFileIntegration(t *testing.T) {
	ctx := context.Background()
	hasher := merkle.Keccak256Hasher{}
	ts := testutil.NewTestServer(t, hasher)
	mc := testutil.NewTestClient(t, ts.URL, hasher)

	files := testutil.CreateTestFiles(t, 1, 64)
	result, err := mc.Upload(ctx, files)
	require.NoError(t, err)
	assert.Equal(t, merkle.HashLeaf(hasher, files[0].Content), result.RootHash)

	res, err := mc.VerifyFile(ctx, 0, files[0].Name, result.RootHash)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Empty(t, res.Proof.Steps)
}

// Test_ReplaceBatchIntegration checks a second upload invalidates the first root
func Test_ReplaceBatchIntegration(t *testing.T) {
	ctx := context.Background()
	hasher := merkle.Keccak256Hasher{}
	ts := testutil.NewTestServer(t, hasher)
	mc := testutil.NewTestClient(t, ts.URL, hasher)

	first, err := mc.Upload(ctx, testutil.CreateTestFiles(t, 4, 32))
	require.NoError(t, err)

	second, err := mc.Upload(ctx, testutil.CreateTestFiles(t, 5, 32))
	require.NoError(t, err)
	require.NotEqual(t, first.RootHash, second.RootHash)

	res, err := mc.VerifyFile(ctx, 0, second.FileNames[0], first.RootHash)
	require.NoError(t, err)
	assert.False(t, res.Verified, "proof for the new batch must not verify against the old root")

	res, err = mc.VerifyFile(ctx, 0, second.FileNames[0], second.RootHash)
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

// Test_ResetIntegration checks files are gone after reset
func Test_ResetIntegration(t *testing.T) {
	ctx := context.Background()
	hasher := merkle.Keccak256Hasher{}
	ts := testutil.NewTestServer(t, hasher)
	mc := testutil.NewTestClient(t, ts.URL, hasher)

	result, err := mc.Upload(ctx, testutil.CreateTestFiles(t, 3, 16))
	require.NoError(t, err)

	require.NoError(t, mc.Reset(ctx))

	_, err = mc.VerifyFile(ctx, 0, result.FileNames[0], result.RootHash)
	require.Error(t, err)
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 404, statusErr.StatusCode)

	health, err := mc.Health(ctx)
	require.NoError(t, err)
	assert.False(t, health.HasBatch)
	assert.Zero(t, health.FileCount)
}

// Test_HashAlgorithmMismatchIntegration checks a client hashing differently is refused
func Test_HashAlgorithmMismatchIntegration(t *testing.T) {
	ctx := context.Background()
	ts := testutil.NewTestServer(t, merkle.Keccak256Hasher{})
	mc := testutil.NewTestClient(t, ts.URL, merkle.SHA256Hasher{})

	_, err := mc.Upload(ctx, testutil.CreateTestFiles(t, 3, 16))
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrRootMismatch)
}
