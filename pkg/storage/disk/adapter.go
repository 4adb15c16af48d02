package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"blobvault/pkg/storage"
	"blobvault/pkg/types"

	"github.com/google/renameio"
)

// Adapter 实现了 storage.Store 接口, one file per block.
type Adapter struct {
	rootPath string // 比如: /home/user/.bv/blocks
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回块对应的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
// Example: id "1491bb49..." -> root/14/91bb49...
func (s *Adapter) layout(id types.BlockID) string {
	name := id.String()
	return filepath.Join(s.rootPath, name[:2], name[2:])
}

func (s *Adapter) Create(ctx context.Context, id types.BlockID, data []byte) error {
	targetPath := s.layout(id)

	// 1. 检查是否存在
	if _, err := os.Stat(targetPath); err == nil {
		return storage.ErrAlreadyExists
	} else if !os.IsNotExist(err) {
		return err
	}

	return s.write(targetPath, data)
}

func (s *Adapter) Store(ctx context.Context, id types.BlockID, data []byte) error {
	return s.write(s.layout(id), data)
}

// write 原子写入 (Atomic Write)
// renameio 先写临时文件再 Rename，保证要么文件不存在，要么文件是完整的
func (s *Adapter) write(targetPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return err
	}
	if err := renameio.WriteFile(targetPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write block file: %w", err)
	}
	return nil
}

func (s *Adapter) Load(ctx context.Context, id types.BlockID) ([]byte, error) {
	data, err := os.ReadFile(s.layout(id))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Adapter) Remove(ctx context.Context, id types.BlockID) error {
	err := os.Remove(s.layout(id))
	if os.IsNotExist(err) {
		return storage.ErrNotFound
	}
	return err
}

func (s *Adapter) Has(ctx context.Context, id types.BlockID) (bool, error) {
	_, err := os.Stat(s.layout(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Count 遍历所有分片目录
// 以 "." 开头的是 renameio 残留的临时文件，不计入
func (s *Adapter) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := filepath.WalkDir(s.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", err)
	}
	return n, nil
}
