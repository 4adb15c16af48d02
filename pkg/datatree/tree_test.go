package datatree

import (
	"context"
	"errors"
	"testing"

	"blobvault/pkg/nodestore"
	"blobvault/pkg/storage/memory"
	"blobvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// 4 字节叶子、扇出 2，几片叶子就能得到很深的树
func newTestStore(t *testing.T) (*Store, *memory.Store) {
	t.Helper()
	return newTestStoreWithFanout(t, 2)
}

func newTestStoreWithFanout(t *testing.T, fanout uint32) (*Store, *memory.Store) {
	t.Helper()
	base, err := nodestore.NewLayout(64)
	require.NoError(t, err)
	layout, err := base.Limit(4, fanout)
	require.NoError(t, err)

	backend := memory.NewStore()
	nodes, err := nodestore.NewStore(backend, layout, nodestore.Options{CacheSize: 8})
	require.NoError(t, err)
	return NewStore(nodes, zaptest.NewLogger(t)), backend
}

func leafData(i uint64) []byte {
	b := byte(i)
	return []byte{b, b, b, b}
}

// growTo 用 create-path 把树扩展到 n 个满叶子
func growTo(t *testing.T, tree *DataTree, n uint64) {
	t.Helper()
	ctx := context.Background()
	cur, err := tree.NumLeaves(ctx)
	require.NoError(t, err)
	// 先把现有叶子填满
	require.NoError(t, tree.TraverseLeaves(ctx, 0, cur, func(i uint64, leaf *nodestore.Leaf) error {
		leaf.Resize(4)
		leaf.Write(leafData(i), 0)
		return nil
	}, nil))
	require.NoError(t, tree.TraverseLeaves(ctx, cur, n, nil, func(i uint64) ([]byte, error) {
		return leafData(i), nil
	}))
}

type nodeShape struct {
	ID       types.BlockID
	Depth    uint8
	Children uint32
}

func shapeOf(t *testing.T, tree *DataTree) []nodeShape {
	t.Helper()
	var out []nodeShape
	require.NoError(t, tree.Walk(context.Background(), func(n nodestore.Node) error {
		s := nodeShape{ID: n.ID(), Depth: n.Depth()}
		if inner, ok := n.(*nodestore.Inner); ok {
			s.Children = inner.NumChildren()
		}
		out = append(out, s)
		return nil
	}))
	return out
}

func expectedDepth(leaves uint64) uint8 {
	var d uint8
	for capacity := uint64(1); capacity < leaves; capacity *= 2 {
		d++
	}
	return d
}

func TestCreateTree(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	tree, err := s.CreateTree(ctx)
	require.NoError(t, err)

	n, err := tree.NumLeaves(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	assert.Equal(t, uint8(0), tree.Depth())

	size, err := tree.NumStoredBytes(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestAddDataLeaf_DepthGrowsOnlyWhenFull(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	tree, err := s.CreateTree(ctx)
	require.NoError(t, err)

	for leaves := uint64(2); leaves <= 40; leaves++ {
		before := tree.Depth()
		wasFull := leaves-1 == uint64(1)<<before

		leaf, err := tree.AddDataLeaf(ctx)
		require.NoError(t, err)
		assert.Zero(t, leaf.Size())

		if wasFull {
			assert.Equal(t, before+1, tree.Depth(), "leaves=%d", leaves)
		} else {
			assert.Equal(t, before, tree.Depth(), "leaves=%d", leaves)
		}
		assert.Equal(t, expectedDepth(leaves), tree.Depth())

		n, err := tree.NumLeaves(ctx)
		require.NoError(t, err)
		assert.Equal(t, leaves, n)
	}
}

func TestAddThenRemoveRestoresShape(t *testing.T) {
	ctx := context.Background()
	for _, fanout := range []uint32{2, 3} {
		s, _ := newTestStoreWithFanout(t, fanout)
		tree, err := s.CreateTree(ctx)
		require.NoError(t, err)

		for leaves := uint64(1); leaves <= 30; leaves++ {
			growTo(t, tree, leaves)
			before := shapeOf(t, tree)
			key := tree.Key()

			_, err := tree.AddDataLeaf(ctx)
			require.NoError(t, err)
			require.NoError(t, tree.RemoveLastDataLeaf(ctx))

			assert.Equal(t, key, tree.Key(), "fanout=%d leaves=%d", fanout, leaves)
			assert.Equal(t, before, shapeOf(t, tree), "fanout=%d leaves=%d", fanout, leaves)
		}
	}
}

func TestRemoveDownToSingleLeaf(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)
	tree, err := s.CreateTree(ctx)
	require.NoError(t, err)
	growTo(t, tree, 13)
	require.NoError(t, tree.Flush(ctx))

	for i := 0; i < 12; i++ {
		require.NoError(t, tree.RemoveLastDataLeaf(ctx))
		n, err := tree.NumLeaves(ctx)
		require.NoError(t, err)
		assert.Equal(t, expectedDepth(n), tree.Depth(), "depth must stay minimal")
	}

	assert.Equal(t, nodestore.KindLeaf, tree.root.Kind())
	assert.Equal(t, uint8(0), tree.Depth())

	err = tree.RemoveLastDataLeaf(ctx)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	// 没有泄漏的块：只剩下根叶子
	require.NoError(t, tree.Flush(ctx))
	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestNumStoredBytes(t *testing.T) {
	ctx := context.Background()
	for _, leaves := range []uint64{1, 2, 3, 5, 8, 9, 17} {
		for lastSize := uint32(0); lastSize <= 4; lastSize++ {
			s, _ := newTestStore(t)
			tree, err := s.CreateTree(ctx)
			require.NoError(t, err)
			growTo(t, tree, leaves)

			require.NoError(t, tree.TraverseLeaves(ctx, leaves-1, leaves, func(_ uint64, leaf *nodestore.Leaf) error {
				leaf.Resize(lastSize)
				return nil
			}, nil))

			var sum uint64
			require.NoError(t, tree.TraverseLeaves(ctx, 0, leaves, func(_ uint64, leaf *nodestore.Leaf) error {
				sum += uint64(leaf.Size())
				return nil
			}, nil))

			got, err := tree.NumStoredBytes(ctx)
			require.NoError(t, err)
			assert.Equal(t, sum, got, "leaves=%d last=%d", leaves, lastSize)
			assert.Equal(t, (leaves-1)*4+uint64(lastSize), got)
		}
	}
}

func TestTraverseLeaves(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	tree, err := s.CreateTree(ctx)
	require.NoError(t, err)
	growTo(t, tree, 5)

	t.Run("existing range in order", func(t *testing.T) {
		var visited []uint64
		err := tree.TraverseLeaves(ctx, 1, 4, func(i uint64, leaf *nodestore.Leaf) error {
			visited = append(visited, i)
			assert.Equal(t, leafData(i), leaf.Data())
			return nil
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3}, visited)
	})

	t.Run("mixed existing and created", func(t *testing.T) {
		var existing, created []uint64
		err := tree.TraverseLeaves(ctx, 3, 9, func(i uint64, _ *nodestore.Leaf) error {
			existing = append(existing, i)
			return nil
		}, func(i uint64) ([]byte, error) {
			created = append(created, i)
			return leafData(i), nil
		})
		require.NoError(t, err)
		assert.Equal(t, []uint64{3, 4}, existing)
		assert.Equal(t, []uint64{5, 6, 7, 8}, created)

		n, err := tree.NumLeaves(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), n)
		assert.Equal(t, uint8(4), tree.Depth())
	})

	t.Run("begin at leaf count", func(t *testing.T) {
		err := tree.TraverseLeaves(ctx, 9, 10, nil, func(i uint64) ([]byte, error) {
			return leafData(i), nil
		})
		require.NoError(t, err)
		n, err := tree.NumLeaves(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), n)
	})

	t.Run("empty range", func(t *testing.T) {
		err := tree.TraverseLeaves(ctx, 4, 4, func(uint64, *nodestore.Leaf) error {
			t.Fatal("must not be called")
			return nil
		}, nil)
		assert.NoError(t, err)
	})

	t.Run("invalid ranges", func(t *testing.T) {
		err := tree.TraverseLeaves(ctx, 11, 12, nil, func(uint64) ([]byte, error) { return nil, nil })
		assert.ErrorIs(t, err, ErrInvalidRange)

		err = tree.TraverseLeaves(ctx, 3, 2, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("callback error stops traversal", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := tree.TraverseLeaves(ctx, 0, 5, func(uint64, *nodestore.Leaf) error {
			calls++
			if calls == 2 {
				return boom
			}
			return nil
		}, nil)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
	})
}

func TestFlushAndLoadTree(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)
	tree, err := s.CreateTree(ctx)
	require.NoError(t, err)
	growTo(t, tree, 7)
	require.NoError(t, tree.Flush(ctx))
	// 幂等
	require.NoError(t, tree.Flush(ctx))

	var walked uint64
	require.NoError(t, tree.Walk(ctx, func(nodestore.Node) error { walked++; return nil }))
	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, walked, count)

	// 用全新的 node store 加载，保证数据确实来自后端
	nodes, err := nodestore.NewStore(backend, s.Layout(), nodestore.Options{})
	require.NoError(t, err)
	loaded, err := NewStore(nodes, nil).LoadTree(ctx, tree.Key())
	require.NoError(t, err)
	assert.Equal(t, tree.Depth(), loaded.Depth())

	require.NoError(t, loaded.TraverseLeaves(ctx, 0, 7, func(i uint64, leaf *nodestore.Leaf) error {
		assert.Equal(t, leafData(i), leaf.Data())
		return nil
	}, nil))

	_, err = s.LoadTree(ctx, types.NewBlockID())
	assert.ErrorIs(t, err, ErrTreeNotFound)
}

func TestRemoveTree(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)
	tree, err := s.CreateTree(ctx)
	require.NoError(t, err)
	growTo(t, tree, 11)
	require.NoError(t, tree.Flush(ctx))

	// 部分节点尚未 Flush
	growTo(t, tree, 14)
	require.NoError(t, s.RemoveTree(ctx, tree))

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRemovedBlocksStayUntilFlush(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)
	tree, err := s.CreateTree(ctx)
	require.NoError(t, err)
	growTo(t, tree, 5)
	require.NoError(t, tree.Flush(ctx))
	flushed, err := backend.Count(ctx)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, tree.RemoveLastDataLeaf(ctx))
	}
	assert.Equal(t, uint8(0), tree.Depth())

	// 旧结构在 Flush 之前仍然完整地留在后端
	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, flushed, count)

	require.NoError(t, tree.Flush(ctx))
	count, err = backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestDiscardRestoresLastFlush(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)
	tree, err := s.CreateTree(ctx)
	require.NoError(t, err)
	growTo(t, tree, 5)
	require.NoError(t, tree.Flush(ctx))
	key := tree.Key()
	flushed, err := backend.Count(ctx)
	require.NoError(t, err)

	// 改写、增长、再缩短，全部都不 Flush
	require.NoError(t, tree.TraverseLeaves(ctx, 0, 1, func(_ uint64, leaf *nodestore.Leaf) error {
		leaf.Write([]byte{9, 9, 9, 9}, 0)
		return nil
	}, nil))
	growTo(t, tree, 7)
	for i := 0; i < 3; i++ {
		require.NoError(t, tree.RemoveLastDataLeaf(ctx))
	}
	tree.Discard()

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, flushed, count)

	loaded, err := s.LoadTree(ctx, key)
	require.NoError(t, err)
	n, err := loaded.NumLeaves(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
	require.NoError(t, loaded.TraverseLeaves(ctx, 0, 5, func(i uint64, leaf *nodestore.Leaf) error {
		assert.Equal(t, leafData(i), leaf.Data(), "leaf %d", i)
		return nil
	}, nil))
}

func TestRemoveTreeDeletesDetachedBlocks(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)
	tree, err := s.CreateTree(ctx)
	require.NoError(t, err)
	growTo(t, tree, 5)
	require.NoError(t, tree.Flush(ctx))

	require.NoError(t, tree.RemoveLastDataLeaf(ctx))
	require.NoError(t, tree.RemoveLastDataLeaf(ctx))
	require.NoError(t, s.RemoveTree(ctx, tree))

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
