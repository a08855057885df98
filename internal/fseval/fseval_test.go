package fseval

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCreateOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	fh, err := Default.Create(path)
	require.NoError(t, err)
	_, err = fh.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	rh, err := Default.Open(path)
	require.NoError(t, err)
	defer rh.Close()

	info, err := Default.Lstat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
}

func TestDefaultMkdirAllAndSymlink(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, Default.MkdirAll(nested, 0o755))

	link := filepath.Join(dir, "link")
	require.NoError(t, Default.Symlink(nested, link))

	target, err := Default.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, nested, target)
}

func TestDefaultLutimesSetsMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	want := time.Unix(1000000, 0)
	require.NoError(t, Default.Lutimes(path, want, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, want, info.ModTime(), time.Second)
}

func TestRootlessChmodSucceedsOnOwnedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	assert.NoError(t, Rootless.Chmod(path, 0o644))
}

func TestForSelectsByEuid(t *testing.T) {
	fs := For()
	if os.Geteuid() == 0 {
		assert.Equal(t, Default, fs)
	} else {
		assert.Equal(t, Rootless, fs)
	}
}
