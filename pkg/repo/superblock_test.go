package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DirName)
	sb := NewSuperblock(4096, "disk")
	require.NoError(t, Init(dir, sb))

	got, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, sb.RepoID, got.RepoID)
	assert.Equal(t, uint32(4096), got.BlockSize)
	assert.Equal(t, "disk", got.StorageType)
	assert.True(t, sb.CreatedAt.Equal(got.CreatedAt))

	err = Init(dir, NewSuperblock(8192, "bolt"))
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestRead_NotRepository(t *testing.T) {
	_, err := Read(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestRead_RejectsGarbageAndFutureVersions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte{0xff, 0x00}, 0644))
	_, err := Read(dir)
	assert.Error(t, err)

	future := NewSuperblock(4096, "disk")
	future.FormatVersion = 99
	data, err := em.Marshal(future)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(Path(dir), data, 0644))
	_, err = Read(dir)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
