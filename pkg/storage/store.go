package storage

import (
	"context"
	"errors"

	"blobvault/pkg/types"
)

var (
	ErrNotFound      = errors.New("block not found")
	ErrAlreadyExists = errors.New("block already exists")
)

// Store defines the interface for a block storage backend.
// Implementations can be local disk, bolt, cloud storage, or in-memory storage.
// 所有实现都必须是并发安全的
type Store interface {
	// Create 写入一个新块；如果 id 已存在，返回 ErrAlreadyExists
	Create(ctx context.Context, id types.BlockID, data []byte) error

	// Load 读取块内容；不存在时返回 ErrNotFound
	Load(ctx context.Context, id types.BlockID) ([]byte, error)

	// Store 创建或覆盖一个块 (节点是原地修改的，所以需要覆盖写)
	Store(ctx context.Context, id types.BlockID, data []byte) error

	// Remove 删除一个块；不存在时返回 ErrNotFound
	Remove(ctx context.Context, id types.BlockID) error

	// Has 检查块是否存在
	Has(ctx context.Context, id types.BlockID) (bool, error)

	// Count 返回当前存储的块数量 (用于统计和泄漏检查)
	Count(ctx context.Context) (uint64, error)
}

// Closer is implemented by backends holding resources (files, connections).
type Closer interface {
	Close() error
}

// Close closes s if it holds resources.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
