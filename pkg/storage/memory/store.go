package memory

import (
	"bytes"
	"context"
	"sync"

	"blobvault/pkg/storage"
	"blobvault/pkg/types"
)

// Store keeps blocks in a map. It backs tests and the "memory" storage type.
type Store struct {
	mu     sync.RWMutex
	blocks map[types.BlockID][]byte
}

func NewStore() *Store {
	return &Store{blocks: make(map[types.BlockID][]byte)}
}

func (s *Store) Create(ctx context.Context, id types.BlockID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[id]; ok {
		return storage.ErrAlreadyExists
	}
	s.blocks[id] = bytes.Clone(data)
	return nil
}

func (s *Store) Load(ctx context.Context, id types.BlockID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	// 返回副本，调用者可以随意修改
	return bytes.Clone(data), nil
}

func (s *Store) Store(ctx context.Context, id types.BlockID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[id] = bytes.Clone(data)
	return nil
}

func (s *Store) Remove(ctx context.Context, id types.BlockID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.blocks, id)
	return nil
}

func (s *Store) Has(ctx context.Context, id types.BlockID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[id]
	return ok, nil
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.blocks)), nil
}
