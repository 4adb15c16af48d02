// Package blob exposes byte-addressed read, write and resize over a data tree.
package blob

import (
	"context"
	"fmt"
	"sync"

	"blobvault/pkg/datatree"
	"blobvault/pkg/nodestore"
	"blobvault/pkg/types"

	"go.uber.org/zap"
)

// Blob 是一段任意长度的字节序列，内容为各叶子已使用字节按顺序拼接。
// 所有公开方法在整个调用期间持有 blob 的互斥锁
type Blob struct {
	mu        sync.Mutex
	tree      *datatree.DataTree
	sizeCache *uint64
	log       *zap.Logger
}

func newBlob(tree *datatree.DataTree, log *zap.Logger) *Blob {
	return &Blob{tree: tree, log: log}
}

func (b *Blob) alive() error {
	if b.tree == nil {
		return ErrRemoved
	}
	return nil
}

// Key 返回当前根节点 id。Resize / Write 可能改变它，调用方需在修改后重新获取
func (b *Blob) Key() types.BlockID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tree == nil {
		return types.BlockID{}
	}
	return b.tree.Key()
}

// Depth 树高，单叶子为 0
func (b *Blob) Depth() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tree == nil {
		return 0
	}
	return b.tree.Depth()
}

func (b *Blob) NumLeaves(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.alive(); err != nil {
		return 0, err
	}
	return b.tree.NumLeaves(ctx)
}

// MaxBytesPerLeaf 每个叶子的容量，按它对齐读写效率最高
func (b *Blob) MaxBytesPerLeaf() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tree == nil {
		return 0
	}
	return b.tree.MaxBytesPerLeaf()
}

func (b *Blob) Size(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.alive(); err != nil {
		return 0, err
	}
	return b.size(ctx)
}

// size 优先使用缓存，否则 O(depth) 计算
func (b *Blob) size(ctx context.Context) (uint64, error) {
	if b.sizeCache != nil {
		return *b.sizeCache, nil
	}
	n, err := b.tree.NumStoredBytes(ctx)
	if err != nil {
		return 0, err
	}
	b.sizeCache = &n
	return n, nil
}

// Resize 截断或补零到 n 字节
func (b *Blob) Resize(ctx context.Context, n uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.alive(); err != nil {
		return err
	}

	if err := b.resize(ctx, n); err != nil {
		b.sizeCache = nil
		return fmt.Errorf("resize to %d bytes: %w", n, err)
	}
	b.sizeCache = &n
	return nil
}

func (b *Blob) resize(ctx context.Context, n uint64) error {
	maxBytes := uint64(b.tree.MaxBytesPerLeaf())
	targetLeaves := max(1, ceilDiv(n, maxBytes))
	lastLen := uint32(n - (targetLeaves-1)*maxBytes)

	cur, err := b.tree.NumLeaves(ctx)
	if err != nil {
		return err
	}

	// 增长：旧的最后一个叶子以及所有新的非末尾叶子都补零到满
	if targetLeaves > cur {
		return b.tree.TraverseLeaves(ctx, cur-1, targetLeaves,
			func(i uint64, leaf *nodestore.Leaf) error {
				if i == targetLeaves-1 {
					leaf.Resize(lastLen)
				} else {
					leaf.Resize(uint32(maxBytes))
				}
				return nil
			},
			func(i uint64) ([]byte, error) {
				if i == targetLeaves-1 {
					return make([]byte, lastLen), nil
				}
				return make([]byte, maxBytes), nil
			})
	}

	// 缩短：逐个删除末尾叶子，再截断新的最后一个叶子
	for ; cur > targetLeaves; cur-- {
		if err := b.tree.RemoveLastDataLeaf(ctx); err != nil {
			return err
		}
	}
	return b.tree.TraverseLeaves(ctx, targetLeaves-1, targetLeaves,
		func(_ uint64, leaf *nodestore.Leaf) error {
			leaf.Resize(lastLen)
			return nil
		}, nil)
}

// Read 读取 [off, off+len(dst))，越过末尾返回 ErrInvalidRange
func (b *Blob) Read(ctx context.Context, dst []byte, off uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.alive(); err != nil {
		return err
	}

	size, err := b.size(ctx)
	if err != nil {
		return err
	}
	if off > size || uint64(len(dst)) > size-off {
		return fmt.Errorf("%w: read of %d bytes at offset %d, blob has %d bytes", ErrInvalidRange, len(dst), off, size)
	}
	if err := b.read(ctx, dst, off); err != nil {
		return fmt.Errorf("read of %d bytes at offset %d: %w", len(dst), off, err)
	}
	return nil
}

// TryRead 与 Read 相同，但把长度截到 blob 末尾，返回实际读取的字节数
func (b *Blob) TryRead(ctx context.Context, dst []byte, off uint64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.alive(); err != nil {
		return 0, err
	}

	size, err := b.size(ctx)
	if err != nil {
		return 0, err
	}
	if off >= size {
		return 0, nil
	}
	n := min(uint64(len(dst)), size-off)
	if err := b.read(ctx, dst[:n], off); err != nil {
		return 0, fmt.Errorf("read of %d bytes at offset %d: %w", n, off, err)
	}
	return int(n), nil
}

// ReadAll 读取整个 blob
func (b *Blob) ReadAll(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.alive(); err != nil {
		return nil, err
	}

	size, err := b.size(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if err := b.read(ctx, out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// read 只走已存在叶子的路径，调用方保证区间在 blob 内
func (b *Blob) read(ctx context.Context, dst []byte, off uint64) error {
	if len(dst) == 0 {
		return nil
	}
	maxBytes := uint64(b.tree.MaxBytesPerLeaf())
	end := off + uint64(len(dst))

	return b.tree.TraverseLeaves(ctx, off/maxBytes, ceilDiv(end, maxBytes),
		func(i uint64, leaf *nodestore.Leaf) error {
			leafStart := i * maxBytes
			lo := max(off, leafStart)
			hi := min(end, leafStart+maxBytes)
			leaf.Read(dst[lo-off:hi-off], uint32(lo-leafStart))
			return nil
		}, nil)
}

// Write 写入 [off, off+len(src))。写到末尾之后时，中间的空洞补零
func (b *Blob) Write(ctx context.Context, src []byte, off uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.alive(); err != nil {
		return err
	}
	if len(src) == 0 {
		return nil
	}

	if err := b.write(ctx, src, off); err != nil {
		b.sizeCache = nil
		return fmt.Errorf("write of %d bytes at offset %d: %w", len(src), off, err)
	}
	return nil
}

func (b *Blob) write(ctx context.Context, src []byte, off uint64) error {
	maxBytes := uint64(b.tree.MaxBytesPerLeaf())
	end := off + uint64(len(src))
	firstLeaf := off / maxBytes
	endLeaf := ceilDiv(end, maxBytes)

	size, err := b.size(ctx)
	if err != nil {
		return err
	}
	extending := end > size

	// 写到末尾之后：从旧的最后一个叶子开始遍历，让它和所有空洞叶子都经过补零
	beginLeaf := firstLeaf
	if extending {
		numLeaves, err := b.tree.NumLeaves(ctx)
		if err != nil {
			return err
		}
		beginLeaf = min(firstLeaf, numLeaves-1)
	}

	onExisting := func(i uint64, leaf *nodestore.Leaf) error {
		leafStart := i * maxBytes
		if extending {
			if i == endLeaf-1 {
				// edge correction: 最后一个被触及的叶子先扩到新的逻辑末尾
				leaf.Resize(uint32(end - leafStart))
			} else if uint64(leaf.Size()) < maxBytes {
				leaf.Resize(uint32(maxBytes))
			}
		}
		lo := max(off, leafStart)
		hi := min(end, leafStart+maxBytes)
		if lo < hi {
			leaf.Write(src[lo-off:hi-off], uint32(lo-leafStart))
		}
		return nil
	}

	onCreate := func(i uint64) ([]byte, error) {
		leafStart := i * maxBytes
		data := make([]byte, min(maxBytes, end-leafStart))
		lo := max(off, leafStart)
		hi := min(end, leafStart+uint64(len(data)))
		if lo < hi {
			copy(data[lo-leafStart:], src[lo-off:hi-off])
		}
		return data, nil
	}

	if err := b.tree.TraverseLeaves(ctx, beginLeaf, endLeaf, onExisting, onCreate); err != nil {
		return err
	}

	if extending {
		b.sizeCache = &end
		stored, err := b.tree.NumStoredBytes(ctx)
		if err != nil {
			return err
		}
		if stored != end {
			b.log.DPanic("blob size mismatch after write",
				zap.String("root", b.tree.Key().Short()),
				zap.Uint64("expected", end),
				zap.Uint64("stored", stored))
			return fmt.Errorf("%w: tree stores %d bytes, expected %d", ErrConsistencyViolation, stored, end)
		}
	}
	return nil
}

// Flush 持久化所有尚未写出的节点
func (b *Blob) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.alive(); err != nil {
		return err
	}
	return b.tree.Flush(ctx)
}

// Discard 丢弃上次 Flush 之后的修改并关闭 blob，之后的调用返回 ErrRemoved
func (b *Blob) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tree == nil {
		return
	}
	b.tree.Discard()
	b.tree = nil
	b.sizeCache = nil
}

// Walk 深度优先访问树的每个节点，用于检查树的形状
func (b *Blob) Walk(ctx context.Context, fn func(n nodestore.Node) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.alive(); err != nil {
		return err
	}
	return b.tree.Walk(ctx, fn)
}

func ceilDiv(a, b uint64) uint64 {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}
