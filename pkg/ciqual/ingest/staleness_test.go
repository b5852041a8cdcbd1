package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsStaleMissingFile(t *testing.T) {
	assert.True(t, IsStale(filepath.Join(t.TempDir(), "absent.db"), 365*24*time.Hour))
}

func TestIsStaleOldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ciqual.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	old := time.Now().Add(-400 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	assert.True(t, IsStale(path, 365*24*time.Hour))
}

func TestIsStaleFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ciqual.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	recent := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, recent, recent))

	assert.False(t, IsStale(path, 365*24*time.Hour))
}
