package ingester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	"blobvault/pkg/blob"
	"blobvault/pkg/ignore"

	"go.uber.org/zap"
)

// DefaultFlushEvery 每写入这么多字节就 Flush 一次，限制内存中的脏节点数量
const DefaultFlushEvery = 64 << 20

type Ingester struct {
	flushEvery uint64
	log        *zap.Logger
}

func NewIngester(flushEvery uint64, log *zap.Logger) *Ingester {
	if flushEvery == 0 {
		flushEvery = DefaultFlushEvery
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{flushEvery: flushEvery, log: log}
}

// IngestReader 把 reader 的内容流式写入 b 的 offset 处，返回写入的字节数。
// 每次写入都按叶子对齐，结束时 Flush
func (ing *Ingester) IngestReader(ctx context.Context, b *blob.Blob, offset uint64, reader io.Reader) (uint64, error) {
	// 一次读若干个完整叶子，写入时每个叶子只被触及一次
	leaf := uint64(b.MaxBytesPerLeaf())
	bufSize := max(leaf, (1<<20)/leaf*leaf)
	buf := make([]byte, bufSize)

	var written, sinceFlush uint64
	for {
		n, err := io.ReadFull(reader, buf)
		if n > 0 {
			if werr := b.Write(ctx, buf[:n], offset+written); werr != nil {
				return written, werr
			}
			written += uint64(n)
			sinceFlush += uint64(n)

			if sinceFlush >= ing.flushEvery {
				if ferr := b.Flush(ctx); ferr != nil {
					return written, ferr
				}
				sinceFlush = 0
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return written, fmt.Errorf("failed to read input: %w", err)
		}
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
	}

	if err := b.Flush(ctx); err != nil {
		return written, err
	}
	ing.log.Debug("ingested stream",
		zap.String("root", b.Key().Short()),
		zap.Uint64("bytes", written))
	return written, nil
}

// File 是目录导入时发现的一个普通文件
type File struct {
	// Name 相对导入根目录的路径，统一使用 "/" 分隔
	Name string
	Path string
	Size int64
}

// CollectFiles 递归列出 root 下所有未被忽略的普通文件，按名字排序
func CollectFiles(root string, matcher *ignore.Matcher) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if matcher.Matches(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, File{Name: filepath.ToSlash(rel), Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
