// Package compress wraps a storage.Store with transparent zstd compression.
package compress

import (
	"bytes"
	"context"
	"fmt"

	"blobvault/pkg/storage"
	"blobvault/pkg/types"

	"github.com/klauspost/compress/zstd"
)

// PrefixLength is a length of compression marker in compressed data.
const PrefixLength = 4

// zstdFrameMagic contains first 4 bytes of any compressed block.
var zstdFrameMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Store compresses block contents on write and decompresses them on read.
// Blocks that do not start with the zstd magic are returned untouched,
// so a store can be switched on for an existing repository.
type Store struct {
	backend storage.Store
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New wraps backend.
func New(backend storage.Store) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Store{backend: backend, encoder: enc, decoder: dec}, nil
}

// IsCompressed checks whether given data is compressed.
func IsCompressed(data []byte) bool {
	return len(data) >= PrefixLength && bytes.Equal(data[:PrefixLength], zstdFrameMagic)
}

func (s *Store) compress(data []byte) []byte {
	out := s.encoder.EncodeAll(data, make([]byte, 0, s.encoder.MaxEncodedSize(len(data))))
	// incompressible: keep raw unless raw would be mistaken for a frame
	if len(out) >= len(data) && !IsCompressed(data) {
		return data
	}
	return out
}

func (s *Store) decompress(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	out, err := s.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, id types.BlockID, data []byte) error {
	return s.backend.Create(ctx, id, s.compress(data))
}

func (s *Store) Store(ctx context.Context, id types.BlockID, data []byte) error {
	return s.backend.Store(ctx, id, s.compress(data))
}

func (s *Store) Load(ctx context.Context, id types.BlockID) ([]byte, error) {
	data, err := s.backend.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decompress(data)
}

func (s *Store) Remove(ctx context.Context, id types.BlockID) error {
	return s.backend.Remove(ctx, id)
}

func (s *Store) Has(ctx context.Context, id types.BlockID) (bool, error) {
	return s.backend.Has(ctx, id)
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	return s.backend.Count(ctx)
}

// Close releases the codec and closes the backend.
func (s *Store) Close() error {
	err := s.encoder.Close()
	s.decoder.Close()
	if cerr := storage.Close(s.backend); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
