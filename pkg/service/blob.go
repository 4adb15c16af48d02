// Package service orchestrates blobs and their catalog entries.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"blobvault/pkg/app"
	"blobvault/pkg/blob"
	"blobvault/pkg/catalog"
	"blobvault/pkg/exporter"
	"blobvault/pkg/ignore"
	"blobvault/pkg/ingester"
	"blobvault/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// MaxNameLength catalog 主键列宽
const MaxNameLength = 255

var (
	ErrInvalidName  = errors.New("invalid blob name")
	ErrHandleClosed = errors.New("blob handle is closed")
)

// Handle 是一个已打开的 blob 与读取它时的 catalog 版本。
// 句柄持有该名字的锁，用完必须 Close
type Handle struct {
	Entry *catalog.Entry
	Blob  *blob.Blob

	release func()
	closed  bool
}

// Close 丢弃尚未 Commit 的修改并释放名字锁。可以重复调用
func (h *Handle) Close() {
	if h.closed {
		return
	}
	h.closed = true
	h.Blob.Discard()
	h.release()
}

// Stat 汇总一个 blob 的目录信息与树形状
type Stat struct {
	Entry     catalog.Entry
	Depth     uint8
	NumLeaves uint64
}

type BlobService struct {
	app   *app.App
	ing   *ingester.Ingester
	exp   *exporter.Exporter
	locks *nameLocks
	log   *zap.Logger
}

func NewBlobService(application *app.App) *BlobService {
	log := application.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &BlobService{
		app:   application,
		ing:   ingester.NewIngester(0, log.Named("ingester")),
		exp:   exporter.NewExporter(log.Named("exporter")),
		locks: newNameLocks(),
		log:   log,
	}
}

// =============================================================================
// 1. 生命周期
// =============================================================================

// Create 新建一个空 blob 并登记到 catalog，返回持有名字锁的句柄
func (s *BlobService) Create(ctx context.Context, name string, attrs map[string]any) (*Handle, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	raw, err := encodeAttrs(attrs)
	if err != nil {
		return nil, err
	}
	release, err := s.locks.acquire(ctx, name)
	if err != nil {
		return nil, err
	}

	b, err := s.app.Blobs.Create(ctx)
	if err != nil {
		release()
		return nil, err
	}
	// 先落盘，catalog 里永远不会出现指向不存在根节点的条目
	if err := b.Flush(ctx); err != nil {
		b.Discard()
		release()
		return nil, err
	}

	entry := &catalog.Entry{Name: name, RootKey: b.Key().String(), Attrs: raw}
	if err := s.app.Catalog.Create(ctx, entry); err != nil {
		// 回滚刚建好的空 blob
		if rerr := s.app.Blobs.Remove(ctx, b); rerr != nil {
			s.log.Warn("failed to remove orphan blob", zap.String("root", b.Key().String()), zap.Error(rerr))
		}
		release()
		return nil, err
	}
	return &Handle{Entry: entry, Blob: b, release: release}, nil
}

// Open 按名字打开 blob。同名的句柄同一时间只有一个，其余调用阻塞到它 Close
func (s *BlobService) Open(ctx context.Context, name string) (*Handle, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	release, err := s.locks.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	h, err := s.open(ctx, name)
	if err != nil {
		release()
		return nil, err
	}
	h.release = release
	return h, nil
}

func (s *BlobService) open(ctx context.Context, name string) (*Handle, error) {
	entry, err := s.app.Catalog.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	key, err := types.ParseBlockID(entry.RootKey)
	if err != nil {
		return nil, fmt.Errorf("catalog entry %s has a bad root key: %w", name, err)
	}
	b, err := s.app.Blobs.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %s: %w", name, err)
	}
	return &Handle{Entry: entry, Blob: b}, nil
}

// Commit 把 blob 落盘，并用 CAS 把新的根节点与大小写回 catalog。
// 树增高或降低后根节点会变，所以每次修改后都必须 Commit。
// catalog 已被别人改过时什么都不写，返回 ErrConcurrentUpdate；句柄 Close 时丢弃修改
func (s *BlobService) Commit(ctx context.Context, h *Handle) error {
	if h.closed {
		return ErrHandleClosed
	}
	if err := s.checkVersion(ctx, h.Entry); err != nil {
		return err
	}
	if err := h.Blob.Flush(ctx); err != nil {
		return err
	}
	size, err := h.Blob.Size(ctx)
	if err != nil {
		return err
	}
	rootKey := h.Blob.Key().String()

	if err := s.app.Catalog.Update(ctx, h.Entry.Name, rootKey, size, h.Entry.Version); err != nil {
		return err
	}
	if rootKey != h.Entry.RootKey {
		s.log.Debug("blob root changed",
			zap.String("name", h.Entry.Name),
			zap.String("old", h.Entry.RootKey),
			zap.String("new", rootKey))
	}
	h.Entry.RootKey = rootKey
	h.Entry.Size = size
	h.Entry.Version++
	return nil
}

// checkVersion 确认 catalog 里的条目仍是句柄打开时的版本
func (s *BlobService) checkVersion(ctx context.Context, e *catalog.Entry) error {
	cur, err := s.app.Catalog.Get(ctx, e.Name)
	if err != nil {
		return err
	}
	if cur.Version != e.Version || cur.RootKey != e.RootKey {
		return fmt.Errorf("%w: %s opened at version %d, catalog has %d",
			catalog.ErrConcurrentUpdate, e.Name, e.Version, cur.Version)
	}
	return nil
}

// Remove 删除 blob 的全部块以及它的 catalog 条目
func (s *BlobService) Remove(ctx context.Context, name string) error {
	h, err := s.Open(ctx, name)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := s.checkVersion(ctx, h.Entry); err != nil {
		return err
	}
	if err := s.app.Blobs.Remove(ctx, h.Blob); err != nil {
		return err
	}
	return s.app.Catalog.Delete(ctx, h.Entry.Name)
}

// =============================================================================
// 2. 读写
// =============================================================================

// Add 把 reader 的内容导入为一个新 blob
func (s *BlobService) Add(ctx context.Context, name string, r io.Reader, attrs map[string]any) (*catalog.Entry, error) {
	h, err := s.Create(ctx, name, attrs)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	if _, err := s.ing.IngestReader(ctx, h.Blob, 0, r); err != nil {
		return nil, fmt.Errorf("failed to ingest %s: %w", h.Entry.Name, err)
	}
	if err := s.Commit(ctx, h); err != nil {
		return nil, err
	}
	return h.Entry, nil
}

// AddFile 导入本地文件，catalog 里记录来源路径
func (s *BlobService) AddFile(ctx context.Context, name, filePath string) (*catalog.Entry, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return s.Add(ctx, name, f, map[string]any{
		"source": filePath,
		"mode":   info.Mode().Perm().String(),
	})
}

// AddDir 递归导入目录，名字为 prefix + 相对路径；跳过被 .bvignore 或 exclude 规则忽略的文件
func (s *BlobService) AddDir(ctx context.Context, prefix, root string, exclude []string, onAdd func(*catalog.Entry)) ([]catalog.Entry, error) {
	matcher, err := ignore.NewMatcher(root, exclude...)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}
	files, err := ingester.CollectFiles(root, matcher)
	if err != nil {
		return nil, err
	}

	added := make([]catalog.Entry, 0, len(files))
	for _, f := range files {
		entry, err := s.AddFile(ctx, path.Join(prefix, f.Name), f.Path)
		if err != nil {
			return added, fmt.Errorf("failed to add %s: %w", f.Name, err)
		}
		added = append(added, *entry)
		if onAdd != nil {
			onAdd(entry)
		}
	}
	return added, nil
}

// WriteAt 把 reader 的内容写到已有 blob 的 offset 处，返回写入字节数
func (s *BlobService) WriteAt(ctx context.Context, name string, r io.Reader, offset uint64) (uint64, error) {
	h, err := s.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	n, err := s.ing.IngestReader(ctx, h.Blob, offset, r)
	if err != nil {
		return n, err
	}
	return n, s.Commit(ctx, h)
}

// Resize 截断或补零到 size 字节
func (s *BlobService) Resize(ctx context.Context, name string, size uint64) error {
	h, err := s.Open(ctx, name)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.Blob.Resize(ctx, size); err != nil {
		return err
	}
	return s.Commit(ctx, h)
}

// Cat 把 blob 的全部内容写到 w
func (s *BlobService) Cat(ctx context.Context, name string, w io.Writer) (uint64, error) {
	h, err := s.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	return s.exp.ExportBlob(ctx, h.Blob, w)
}

// PrintTree 打印 blob 的树形结构
func (s *BlobService) PrintTree(ctx context.Context, name string, w io.Writer) error {
	h, err := s.Open(ctx, name)
	if err != nil {
		return err
	}
	defer h.Close()

	return exporter.PrintTree(ctx, h.Blob, w)
}

// Export 把所有以 prefix 开头的 blob 还原到 targetDir 下
func (s *BlobService) Export(ctx context.Context, prefix, targetDir string, onExport func(e catalog.Entry, path string)) (int, error) {
	entries, err := s.app.Catalog.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		target := filepath.Join(targetDir, filepath.FromSlash(e.Name))
		if err := s.restore(ctx, e.Name, target); err != nil {
			return i, err
		}
		if onExport != nil {
			onExport(e, target)
		}
	}
	return len(entries), nil
}

func (s *BlobService) restore(ctx context.Context, name, target string) error {
	h, err := s.Open(ctx, name)
	if err != nil {
		return err
	}
	defer h.Close()

	_, err = s.exp.RestoreFile(ctx, h.Blob, target)
	return err
}

// =============================================================================
// 3. 查询
// =============================================================================

func (s *BlobService) Stat(ctx context.Context, name string) (*Stat, error) {
	h, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	leaves, err := h.Blob.NumLeaves(ctx)
	if err != nil {
		return nil, err
	}
	return &Stat{Entry: *h.Entry, Depth: h.Blob.Depth(), NumLeaves: leaves}, nil
}

func (s *BlobService) List(ctx context.Context, prefix string) ([]catalog.Entry, error) {
	return s.app.Catalog.List(ctx, prefix)
}

// cleanName 统一为不带前导 "/" 的 slash 路径
func cleanName(name string) (string, error) {
	name = strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	}
	return name, nil
}

func encodeAttrs(attrs map[string]any) (datatypes.JSON, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attrs: %w", err)
	}
	return datatypes.JSON(raw), nil
}
