package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage_EnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads", "nested")
	fs := NewFileStorage(dir)

	require.NoError(t, fs.EnsureDir())
	require.NoError(t, fs.EnsureDir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileStorage_OutputPaths(t *testing.T) {
	fs := NewFileStorage("/data/downloads")
	id := uuid.MustParse("6f1c7d1e-6b7a-4f5e-9a53-3c1f4f3a2b10")

	assert.Equal(t, "/data/downloads/audio-6f1c7d1e-6b7a-4f5e-9a53-3c1f4f3a2b10.%(ext)s", fs.OutputTemplate(id))
	assert.Equal(t, "/data/downloads/audio-6f1c7d1e-6b7a-4f5e-9a53-3c1f4f3a2b10.mp3", fs.OutputPath(id, "mp3"))
}

func TestFileStorage_RemoveIsIdempotent(t *testing.T) {
	fs := NewFileStorage(t.TempDir())
	path := filepath.Join(fs.Dir(), "audio-x.mp3")
	require.NoError(t, os.WriteFile(path, []byte("id3"), 0o644))

	require.NoError(t, fs.Remove(path))
	assert.False(t, fs.Exists(path))
	require.NoError(t, fs.Remove(path))
}

func TestFileStorage_RemoveJobArtifacts(t *testing.T) {
	fs := NewFileStorage(t.TempDir())
	id := uuid.New()
	other := uuid.New()

	for _, name := range []string{
		"audio-" + id.String() + ".webm.part",
		"audio-" + id.String() + ".mp3",
		"audio-" + other.String() + ".mp3",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(fs.Dir(), name), []byte("x"), 0o644))
	}

	require.NoError(t, fs.RemoveJobArtifacts(id))

	files, err := fs.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, fs.OutputPath(other, "mp3"), files[0].Path)
}

func TestFileStorage_ListSkipsDirectoriesAndMissingDir(t *testing.T) {
	fs := NewFileStorage(t.TempDir())
	require.NoError(t, os.Mkdir(filepath.Join(fs.Dir(), "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(fs.Dir(), "a.mp3"), []byte("abc"), 0o644))

	files, err := fs.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(3), files[0].Size)

	missing := NewFileStorage(filepath.Join(t.TempDir(), "nope"))
	files, err = missing.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}
