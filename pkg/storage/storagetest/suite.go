// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"bytes"
	"context"
	"testing"

	"blobvault/pkg/storage"
	"blobvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes the backend conformance suite against stores built by newStore.
// Every subtest gets a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("CreateThenLoad", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, size := range []int{1, 5, 1024, 32 * 1024} {
			id := types.NewBlockID()
			data := pattern(size)
			require.NoError(t, s.Create(ctx, id, data))

			loaded, err := s.Load(ctx, id)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, loaded), "size %d", size)
		}
	})

	t.Run("CreateExistingFails", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := types.NewBlockID()
		require.NoError(t, s.Create(ctx, id, []byte("first")))

		err := s.Create(ctx, id, []byte("second"))
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)

		loaded, err := s.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), loaded, "failed create must not overwrite")
	})

	t.Run("LoadMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Load(context.Background(), types.NewBlockID())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("StoreOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := types.NewBlockID()

		// Store 对不存在的块等价于 Create
		require.NoError(t, s.Store(ctx, id, []byte("v1")))
		require.NoError(t, s.Store(ctx, id, []byte("version-2")))

		loaded, err := s.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []byte("version-2"), loaded)
	})

	t.Run("LoadedDataIsACopy", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := types.NewBlockID()
		require.NoError(t, s.Create(ctx, id, []byte("abc")))

		loaded, err := s.Load(ctx, id)
		require.NoError(t, err)
		loaded[0] = 'X'

		again, err := s.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again)
	})

	t.Run("RemoveAndHas", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := types.NewBlockID()

		has, err := s.Has(ctx, id)
		require.NoError(t, err)
		assert.False(t, has)

		require.NoError(t, s.Create(ctx, id, []byte("data")))
		has, err = s.Has(ctx, id)
		require.NoError(t, err)
		assert.True(t, has)

		require.NoError(t, s.Remove(ctx, id))
		has, err = s.Has(ctx, id)
		require.NoError(t, err)
		assert.False(t, has)

		assert.ErrorIs(t, s.Remove(ctx, id), storage.ErrNotFound)
		_, err = s.Load(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Count", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), n)

		ids := make([]types.BlockID, 5)
		for i := range ids {
			ids[i] = types.NewBlockID()
			require.NoError(t, s.Create(ctx, ids[i], pattern(i+1)))
		}
		n, err = s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), n)

		require.NoError(t, s.Remove(ctx, ids[2]))
		n, err = s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), n)
	})
}

func pattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	return data
}
