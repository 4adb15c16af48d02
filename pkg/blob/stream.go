package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Stream 把 Blob 适配为标准库的 io 接口。
// 偏移量属于 Stream 自身，多个 Stream 可以共享同一个 Blob
type Stream struct {
	ctx    context.Context
	blob   *Blob
	offset int64
}

var (
	_ io.ReadWriteSeeker = (*Stream)(nil)
	_ io.ReaderAt        = (*Stream)(nil)
	_ io.WriterAt        = (*Stream)(nil)
)

var errNegativeOffset = errors.New("negative offset")

func NewStream(ctx context.Context, b *Blob) *Stream {
	return &Stream{ctx: ctx, blob: b}
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.offset)
	s.offset += int64(n)
	return n, err
}

func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := s.blob.TryRead(s.ctx, p, uint64(off))
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.WriteAt(p, s.offset)
	s.offset += int64(n)
	return n, err
}

func (s *Stream) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if err := s.blob.Write(s.ctx, p, uint64(off)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.offset
	case io.SeekEnd:
		size, err := s.blob.Size(s.ctx)
		if err != nil {
			return 0, err
		}
		base = int64(size)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if base+offset < 0 {
		return 0, errNegativeOffset
	}
	s.offset = base + offset
	return s.offset, nil
}
