package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"blobvault/pkg/storage"
	"blobvault/pkg/storage/storagetest"
	"blobvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskAdapter(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, err := NewAdapter(t.TempDir())
		require.NoError(t, err)
		return store
	})
}

func TestDiskAdapter_Sharding(t *testing.T) {
	// 1. 创建临时测试目录
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	ctx := context.Background()
	id, err := types.ParseBlockID("1491bb4932a389ee14bc7090ac772972")
	require.NoError(t, err)

	// 2. 写入
	require.NoError(t, store.Create(ctx, id, []byte("hello world")))

	// 验证文件是否真的存在于物理磁盘
	// 路径应该是 tmpDir/14/91bb49...
	expectedPath := filepath.Join(tmpDir, "14", "91bb4932a389ee14bc7090ac772972")
	content, err := os.ReadFile(expectedPath)
	require.NoError(t, err, "文件应该存在于 Sharding 目录中")
	assert.Equal(t, []byte("hello world"), content)
}

func TestDiskAdapter_CountIgnoresTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, types.NewBlockID(), []byte("a")))

	// 模拟崩溃残留的临时文件
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "ab"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ab", ".tmp-leftover"), []byte("x"), 0644))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}
