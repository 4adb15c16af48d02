// Package exporter streams blob contents back out to writers and files.
package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"blobvault/pkg/blob"

	"github.com/google/renameio"
	"go.uber.org/zap"
)

// chunkLeaves 每次读取的叶子数
const chunkLeaves = 128

type Exporter struct {
	log *zap.Logger
}

func NewExporter(log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{log: log}
}

// ExportBlob 将 blob 的全部内容顺序写入 writer，返回写出的字节数。
// 按叶子对齐分段读取，不会把整个 blob 放进内存
func (e *Exporter) ExportBlob(ctx context.Context, b *blob.Blob, writer io.Writer) (uint64, error) {
	buf := make([]byte, int(b.MaxBytesPerLeaf())*chunkLeaves)

	var off uint64
	for {
		if err := ctx.Err(); err != nil {
			return off, err
		}
		n, err := b.TryRead(ctx, buf, off)
		if err != nil {
			return off, fmt.Errorf("failed to read blob at offset %d: %w", off, err)
		}
		if n == 0 {
			return off, nil
		}
		if _, err := writer.Write(buf[:n]); err != nil {
			return off, fmt.Errorf("failed to write output: %w", err)
		}
		off += uint64(n)
	}
}

// RestoreFile 把 blob 还原为 path 处的文件。
// 先写临时文件再原子替换，失败时不会留下写了一半的目标文件
func (e *Exporter) RestoreFile(ctx context.Context, b *blob.Blob, path string) (uint64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create dir for %s: %w", path, err)
	}

	tmp, err := renameio.TempFile("", path)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	// Cleanup 在 CloseAtomicallyReplace 成功后是空操作
	defer tmp.Cleanup()

	n, err := e.ExportBlob(ctx, b, tmp)
	if err != nil {
		return n, err
	}
	if err := tmp.CloseAtomicallyReplace(); err != nil {
		return n, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	e.log.Debug("restored file", zap.String("path", path), zap.Uint64("bytes", n))
	return n, nil
}
