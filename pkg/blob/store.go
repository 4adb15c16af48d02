package blob

import (
	"context"

	"blobvault/pkg/datatree"
	"blobvault/pkg/types"

	"go.uber.org/zap"
)

// Store 创建、加载、删除 blob
type Store struct {
	trees *datatree.Store
	log   *zap.Logger
}

func NewStore(trees *datatree.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{trees: trees, log: log}
}

// Create 新建一个空 blob (一个空叶子)
func (s *Store) Create(ctx context.Context) (*Blob, error) {
	tree, err := s.trees.CreateTree(ctx)
	if err != nil {
		return nil, err
	}
	return newBlob(tree, s.log), nil
}

// Load 按根节点 id 加载 blob；不存在时返回 ErrNotFound
func (s *Store) Load(ctx context.Context, key types.BlockID) (*Blob, error) {
	tree, err := s.trees.LoadTree(ctx, key)
	if err != nil {
		return nil, err
	}
	return newBlob(tree, s.log), nil
}

// Remove 删除 blob 的所有块，之后 b 不可再用
func (s *Store) Remove(ctx context.Context, b *Blob) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.alive(); err != nil {
		return err
	}
	if err := s.trees.RemoveTree(ctx, b.tree); err != nil {
		return err
	}
	b.tree = nil
	b.sizeCache = nil
	return nil
}
