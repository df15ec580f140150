package janitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.png"), 2*time.Hour)
	touch(t, filepath.Join(dir, "older.pdf"), 48*time.Hour)
	touch(t, filepath.Join(dir, "fresh.png"), time.Minute)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	n, err := Sweep(dir, DefaultMaxAge)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.FileExists(t, filepath.Join(dir, "fresh.png"))
	assert.NoFileExists(t, filepath.Join(dir, "old.png"))
	assert.DirExists(t, filepath.Join(dir, "nested"))
}

func TestSweep_MissingDir(t *testing.T) {
	n, err := Sweep(filepath.Join(t.TempDir(), "nope"), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepAll(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(a, "1"), 3*time.Hour)
	touch(t, filepath.Join(b, "2"), 3*time.Hour)
	touch(t, filepath.Join(b, "3"), 0)

	orig := now
	now = func() time.Time { return time.Now().Add(30 * time.Minute) }
	defer func() { now = orig }()

	assert.Equal(t, 2, SweepAll(time.Hour, a, b, filepath.Join(a, "missing")))
	assert.FileExists(t, filepath.Join(b, "3"))
}
