package nodestore

import (
	"fmt"

	"blobvault/pkg/types"
)

const (
	// HeaderSize 块头固定 8 字节: version(2) | depth(1) | reserved(1) | size(4)
	HeaderSize = 8
	// FormatVersion 当前块格式版本
	FormatVersion uint16 = 1

	// DefaultBlockSize 默认物理块大小 (32 KiB)
	DefaultBlockSize uint32 = 32 * 1024

	childIDSize = types.BlockIDSize
)

// Layout 描述一个物理块如何被划分。
// BlockSize 是编码后块的真实长度；MaxBytesPerLeaf / MaxChildren 可以比块容量更小 (测试用)
type Layout struct {
	BlockSize       uint32
	MaxBytesPerLeaf uint32
	MaxChildren     uint32
}

// NewLayout 根据块大小计算叶子容量与扇出
func NewLayout(blockSize uint32) (Layout, error) {
	if blockSize < HeaderSize+2*childIDSize {
		return Layout{}, fmt.Errorf("%w: block size %d too small, need at least %d",
			ErrLayout, blockSize, HeaderSize+2*childIDSize)
	}
	return Layout{
		BlockSize:       blockSize,
		MaxBytesPerLeaf: blockSize - HeaderSize,
		MaxChildren:     (blockSize - HeaderSize) / childIDSize,
	}, nil
}

// Limit 返回一个容量被进一步收紧的 Layout，块大小不变
func (l Layout) Limit(maxBytesPerLeaf, maxChildren uint32) (Layout, error) {
	if maxBytesPerLeaf == 0 || maxBytesPerLeaf > l.BlockSize-HeaderSize {
		return Layout{}, fmt.Errorf("%w: leaf capacity %d does not fit block of %d bytes",
			ErrLayout, maxBytesPerLeaf, l.BlockSize)
	}
	if maxChildren < 2 || maxChildren > (l.BlockSize-HeaderSize)/childIDSize {
		return Layout{}, fmt.Errorf("%w: fan-out %d does not fit block of %d bytes",
			ErrLayout, maxChildren, l.BlockSize)
	}
	return Layout{
		BlockSize:       l.BlockSize,
		MaxBytesPerLeaf: maxBytesPerLeaf,
		MaxChildren:     maxChildren,
	}, nil
}

// LeavesPerFullChild 深度为 depth 的 inner 节点，其每个满子树能容纳的叶子数 = fanout^(depth-1)
func (l Layout) LeavesPerFullChild(depth uint8) uint64 {
	n := uint64(1)
	for i := uint8(1); i < depth; i++ {
		n *= uint64(l.MaxChildren)
	}
	return n
}
