package datatree

import (
	"context"
	"errors"
	"fmt"

	"blobvault/pkg/nodestore"
	"blobvault/pkg/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// removeWorkers 删除子树时每一层的并发度
const removeWorkers = 8

// Store 负责创建、加载、删除整棵树
type Store struct {
	nodes *nodestore.Store
	log   *zap.Logger
}

func NewStore(nodes *nodestore.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{nodes: nodes, log: log}
}

func (s *Store) Layout() nodestore.Layout { return s.nodes.Layout() }

// CreateTree 新建一棵只有一个空叶子的树
func (s *Store) CreateTree(ctx context.Context) (*DataTree, error) {
	leaf, err := s.nodes.CreateLeaf(nil)
	if err != nil {
		return nil, err
	}
	return newDataTree(s.nodes, leaf, s.log), nil
}

// LoadTree 以 key 为根加载一棵树
func (s *Store) LoadTree(ctx context.Context, key types.BlockID) (*DataTree, error) {
	root, err := s.nodes.Load(ctx, key)
	if err != nil {
		if errors.Is(err, nodestore.ErrNodeNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, key)
		}
		return nil, err
	}
	return newDataTree(s.nodes, root, s.log), nil
}

// RemoveTree 删除树的所有节点。同一父节点下的兄弟子树并发删除
func (s *Store) RemoveTree(ctx context.Context, tree *DataTree) error {
	key := tree.Key()
	if err := tree.removePending(ctx); err != nil {
		return fmt.Errorf("failed to remove tree %s: %w", key.Short(), err)
	}
	if err := tree.removeSubtree(ctx, tree.root); err != nil {
		return fmt.Errorf("failed to remove tree %s: %w", key.Short(), err)
	}
	clear(tree.dirty)
	tree.root = nil
	s.log.Debug("tree removed", zap.String("root", key.Short()))
	return nil
}

// removeSubtree 先删孩子再删自己，避免中途失败时留下悬空引用
func (t *DataTree) removeSubtree(ctx context.Context, n nodestore.Node) error {
	if inner, ok := n.(*nodestore.Inner); ok {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(removeWorkers)
		for i := uint32(0); i < inner.NumChildren(); i++ {
			id := inner.Child(i)
			g.Go(func() error {
				child, err := t.load(gctx, id)
				if err != nil {
					return err
				}
				return t.removeSubtree(gctx, child)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return t.nodes.Remove(ctx, n)
}
