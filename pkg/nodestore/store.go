// Package nodestore turns raw blocks into typed leaf and inner nodes.
package nodestore

import (
	"context"
	"errors"
	"fmt"

	"blobvault/pkg/storage"
	"blobvault/pkg/types"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCacheSize    = 1024
	DefaultFlushWorkers = 8
)

// Options 调整 Store 的缓存与并发参数，零值使用默认值
type Options struct {
	CacheSize    int
	FlushWorkers int
	Logger       *zap.Logger
}

// Store 在 storage.Store 之上提供节点级别的创建、加载、删除与持久化。
// 已解码的节点放在 LRU 中；新建或修改过的节点只存在于内存，直到 Flush
type Store struct {
	backend storage.Store
	layout  Layout
	cache   *lru.Cache[types.BlockID, Node]
	workers int
	log     *zap.Logger
}

func NewStore(backend storage.Store, layout Layout, opts Options) (*Store, error) {
	if layout.MaxBytesPerLeaf == 0 || layout.MaxChildren < 2 {
		return nil, fmt.Errorf("%w: %+v", ErrLayout, layout)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.FlushWorkers <= 0 {
		opts.FlushWorkers = DefaultFlushWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[types.BlockID, Node](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create node cache: %w", err)
	}

	return &Store{
		backend: backend,
		layout:  layout,
		cache:   cache,
		workers: opts.FlushWorkers,
		log:     opts.Logger,
	}, nil
}

func (s *Store) Layout() Layout { return s.layout }

// CreateLeaf 分配一个新的叶子节点，内容为 data 的副本
func (s *Store) CreateLeaf(data []byte) (*Leaf, error) {
	if uint32(len(data)) > s.layout.MaxBytesPerLeaf {
		return nil, fmt.Errorf("%w: leaf data of %d bytes exceeds capacity %d", ErrLayout, len(data), s.layout.MaxBytesPerLeaf)
	}
	leaf := &Leaf{
		nodeState: nodeState{id: types.NewBlockID(), dirty: true},
		maxBytes:  s.layout.MaxBytesPerLeaf,
		data:      append(make([]byte, 0, len(data)), data...),
	}
	s.cache.Add(leaf.id, leaf)
	return leaf, nil
}

// CreateInner 分配一个新的 inner 节点
func (s *Store) CreateInner(depth uint8, children ...types.BlockID) (*Inner, error) {
	if depth == 0 {
		return nil, fmt.Errorf("%w: inner node needs depth >= 1", ErrLayout)
	}
	if len(children) == 0 || uint32(len(children)) > s.layout.MaxChildren {
		return nil, fmt.Errorf("%w: inner node needs 1..%d children, got %d", ErrLayout, s.layout.MaxChildren, len(children))
	}
	inner := &Inner{
		nodeState:   nodeState{id: types.NewBlockID(), dirty: true},
		depth:       depth,
		maxChildren: s.layout.MaxChildren,
		children:    append(make([]types.BlockID, 0, s.layout.MaxChildren), children...),
	}
	s.cache.Add(inner.id, inner)
	return inner, nil
}

// Load 读取并解码节点；块不存在时返回 ErrNodeNotFound
func (s *Store) Load(ctx context.Context, id types.BlockID) (Node, error) {
	if n, ok := s.cache.Get(id); ok {
		return n, nil
	}

	buf, err := s.backend.Load(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}
		return nil, fmt.Errorf("failed to load node %s: %w", id.Short(), err)
	}

	n, err := s.layout.decode(id, buf)
	if err != nil {
		s.log.Error("refusing corrupt block", zap.String("block", id.String()), zap.Error(err))
		return nil, err
	}
	s.cache.Add(id, n)
	return n, nil
}

// Remove 删除节点。从未持久化过的节点只需要从内存中丢弃
func (s *Store) Remove(ctx context.Context, n Node) error {
	st := n.state()
	s.cache.Remove(st.id)
	if !st.persisted {
		st.dirty = false
		return nil
	}
	if err := s.backend.Remove(ctx, st.id); err != nil {
		return fmt.Errorf("failed to remove node %s: %w", st.id.Short(), err)
	}
	st.persisted = false
	st.dirty = false
	return nil
}

// Forget 把节点从缓存中丢掉，下次 Load 从后端重新解码。
// 用来撤销尚未 Flush 的内存修改
func (s *Store) Forget(nodes ...Node) {
	for _, n := range nodes {
		s.cache.Remove(n.ID())
	}
}

// Flush 并发持久化所有 dirty 节点
func (s *Store) Flush(ctx context.Context, nodes []Node) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	written := 0
	for _, n := range nodes {
		st := n.state()
		if !st.dirty {
			continue
		}
		written++
		buf := s.layout.encode(n)
		g.Go(func() error {
			var err error
			if st.persisted {
				err = s.backend.Store(ctx, st.id, buf)
			} else {
				err = s.backend.Create(ctx, st.id, buf)
			}
			if err != nil {
				return fmt.Errorf("failed to flush node %s: %w", st.id.Short(), err)
			}
			st.persisted = true
			st.dirty = false
			// 保证缓存里是刚写出去的这份，而不是更早被挤出又重新加载的副本
			s.cache.Add(st.id, n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if written > 0 {
		s.log.Debug("flushed nodes", zap.Int("count", written))
	}
	return nil
}

// NumBlocks 返回后端当前存储的块数量
func (s *Store) NumBlocks(ctx context.Context) (uint64, error) {
	return s.backend.Count(ctx)
}
