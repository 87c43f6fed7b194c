package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccess_WritesAllThreeFiles(t *testing.T) {
	root := t.TempDir()
	requests := t.TempDir()

	original := filepath.Join(requests, "100.json")
	require.NoError(t, os.WriteFile(original, []byte(`{"orig":true}`), 0o644))

	a := New(root)
	require.NoError(t, a.Success("670-1-100", original, []byte(`{"repaired":true}`), []byte(`{"resp":true}`)))

	dir := filepath.Join(root, "success", "670-1-100")
	repaired, err := os.ReadFile(filepath.Join(dir, "repaired.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"repaired":true}`, string(repaired))

	response, err := os.ReadFile(filepath.Join(dir, "repairedResponse.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"resp":true}`, string(response))

	moved, err := os.ReadFile(filepath.Join(dir, "original.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"orig":true}`, string(moved))

	// The original file is gone from the requests directory.
	_, err = os.Stat(original)
	assert.True(t, os.IsNotExist(err))
}

func TestSuccess_SynthesizedRequestHasNoOriginal(t *testing.T) {
	root := t.TempDir()

	a := New(root)
	require.NoError(t, a.Success("670-1-881", "", []byte(`{}`), []byte(`{}`)))

	dir := filepath.Join(root, "success", "670-1-881")
	_, err := os.Stat(filepath.Join(dir, "repaired.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "original.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestFailure_MovesOriginal(t *testing.T) {
	root := t.TempDir()
	requests := t.TempDir()

	original := filepath.Join(requests, "101.json")
	require.NoError(t, os.WriteFile(original, []byte(`{"orig":true}`), 0o644))

	a := New(root)
	require.NoError(t, a.Failure(original))

	moved, err := os.ReadFile(filepath.Join(root, "failed", "101.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"orig":true}`, string(moved))

	_, err = os.Stat(original)
	assert.True(t, os.IsNotExist(err))
}

func TestFailure_MissingOriginal(t *testing.T) {
	a := New(t.TempDir())
	assert.Error(t, a.Failure(filepath.Join(t.TempDir(), "nope.json")))
}
