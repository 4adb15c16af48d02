package ingester

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"blobvault/pkg/blob"
	"blobvault/pkg/datatree"
	"blobvault/pkg/ignore"
	"blobvault/pkg/nodestore"
	"blobvault/pkg/storage"
	"blobvault/pkg/storage/disk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBlobStore(t *testing.T, backend storage.Store) *blob.Store {
	t.Helper()
	layout, err := nodestore.NewLayout(256)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	nodes, err := nodestore.NewStore(backend, layout, nodestore.Options{CacheSize: 16, Logger: log})
	require.NoError(t, err)
	return blob.NewStore(datatree.NewStore(nodes, log), log)
}

func TestIngestFlow(t *testing.T) {
	// 1. 准备环境
	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	blobs := newBlobStore(t, store)
	ctx := context.Background()

	// 2. 准备一个“大”文件 (约 135KB)，flushEvery 很小，中途会多次 Flush
	content := bytes.Repeat([]byte("Hello BlobVault block tree "), 5000)
	ing := NewIngester(4096, zaptest.NewLogger(t))

	b, err := blobs.Create(ctx)
	require.NoError(t, err)
	n, err := ing.IngestReader(ctx, b, 0, bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(content)), n)

	size, err := b.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(content)), size)
	assert.Greater(t, b.Depth(), uint8(1), "应该是多层树")

	// 3. 用新的 Store 重新加载，数据确实落盘
	reloaded, err := newBlobStore(t, store).Load(ctx, b.Key())
	require.NoError(t, err)
	got, err := reloaded.ReadAll(ctx)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got), "数据应该完全一致")
}

func TestIngestAtOffset(t *testing.T) {
	ctx := context.Background()
	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	b, err := newBlobStore(t, store).Create(ctx)
	require.NoError(t, err)

	ing := NewIngester(0, nil)
	_, err = ing.IngestReader(ctx, b, 0, bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	_, err = ing.IngestReader(ctx, b, 6, bytes.NewReader([]byte("xyz")))
	require.NoError(t, err)

	got, err := b.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc\x00\x00\x00xyz"), got)
}

func TestIngestEmptyReader(t *testing.T) {
	ctx := context.Background()
	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	b, err := newBlobStore(t, store).Create(ctx)
	require.NoError(t, err)

	n, err := NewIngester(0, nil).IngestReader(ctx, b, 0, bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Zero(t, n)

	// 空 blob 也要落盘，之后才能按 key 加载
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	mustWrite := func(rel string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(rel), 0644))
	}
	mustWrite("b.bin")
	mustWrite("a/weights.bin")
	mustWrite("a/debug.log")
	mustWrite(".bv/blocks/xx")
	mustWrite("build/out.o")
	require.NoError(t, os.WriteFile(filepath.Join(root, ignore.FileName), []byte("*.log\nbuild/\n"), 0644))

	matcher, err := ignore.NewMatcher(root)
	require.NoError(t, err)
	files, err := CollectFiles(root, matcher)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{".bvignore", "a/weights.bin", "b.bin"}, names)
	assert.Equal(t, int64(len("b.bin")), files[2].Size)
}
