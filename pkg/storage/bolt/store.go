package bolt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"blobvault/pkg/storage"
	"blobvault/pkg/types"

	"go.etcd.io/bbolt"
)

var bucketName = []byte("blocks")

// Options groups the bolt backend options.
type Options struct {
	Path    string
	NoSync  bool
	Timeout time.Duration // 文件锁等待时间
}

// Store keeps every block as one key in a single bbolt bucket.
type Store struct {
	db *bbolt.DB
}

// Open creates (or reopens) the database file.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("bolt: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("bolt: could not use %q dir: %w", filepath.Dir(opts.Path), err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	db, err := bbolt.Open(opts.Path, 0644, &bbolt.Options{
		Timeout:      timeout,
		NoSync:       opts.NoSync,
		FreelistType: bbolt.DefaultOptions.FreelistType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", opts.Path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Create(ctx context.Context, id types.BlockID, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(id[:]) != nil {
			return storage.ErrAlreadyExists
		}
		return b.Put(bytes.Clone(id[:]), bytes.Clone(data))
	})
}

func (s *Store) Load(ctx context.Context, id types.BlockID) (data []byte, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketName).Get(id[:])
		if val == nil {
			return storage.ErrNotFound
		}
		// bbolt 返回的切片只在事务内有效，必须拷贝
		data = bytes.Clone(val)
		if data == nil {
			data = []byte{}
		}
		return nil
	})
	return data, err
}

func (s *Store) Store(ctx context.Context, id types.BlockID, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(bytes.Clone(id[:]), bytes.Clone(data))
	})
}

func (s *Store) Remove(ctx context.Context, id types.BlockID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(id[:]) == nil {
			return storage.ErrNotFound
		}
		return b.Delete(id[:])
	})
}

func (s *Store) Has(ctx context.Context, id types.BlockID) (found bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketName).Get(id[:]) != nil
		return nil
	})
	return found, err
}

func (s *Store) Count(ctx context.Context) (n uint64, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		n = uint64(tx.Bucket(bucketName).Stats().KeyN)
		return nil
	})
	return n, err
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}
