package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"blobvault/pkg/storage"
	"blobvault/pkg/storage/storagetest"
	"blobvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(Options{Path: path, NoSync: true})
	require.NoError(t, err)
	return s
}

func TestBoltStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s := openTestStore(t, filepath.Join(t.TempDir(), "blocks.db"))
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "blocks.db")
	ctx := context.Background()
	id := types.NewBlockID()

	s := openTestStore(t, path)
	require.NoError(t, s.Create(ctx, id, []byte("persistent")))
	require.NoError(t, s.Close())

	// 重新打开后数据仍然存在
	s = openTestStore(t, path)
	defer s.Close()
	data, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent"), data)
}

func TestBoltStore_EmptyPath(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}
