// Package metrics wraps a storage.Store with prometheus operation counters.
package metrics

import (
	"context"
	"errors"
	"time"

	"blobvault/pkg/storage"
	"blobvault/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "blobvault"
	subsystem = "blockstore"

	opLabel     = "op"
	resultLabel = "result"
)

const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultExists   = "exists"
	resultError    = "error"
)

type storeMetrics struct {
	ops      *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newStoreMetrics() storeMetrics {
	return storeMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Block store operations by kind and result",
		}, []string{opLabel, resultLabel}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_total",
			Help:      "Bytes moved through the block store",
		}, []string{opLabel}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operation_seconds",
			Help:      "Block store operation handling time",
		}, []string{opLabel}),
	}
}

// Store counts calls going to the wrapped backend.
type Store struct {
	backend storage.Store
	m       storeMetrics
}

// New wraps backend and registers its collectors on reg.
func New(backend storage.Store, reg prometheus.Registerer) (*Store, error) {
	m := newStoreMetrics()
	for _, c := range []prometheus.Collector{m.ops, m.bytes, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &Store{backend: backend, m: m}, nil
}

func (s *Store) observe(op string, start time.Time, err error) {
	s.m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	s.m.ops.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, storage.ErrNotFound):
		return resultNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return resultExists
	default:
		return resultError
	}
}

func (s *Store) Create(ctx context.Context, id types.BlockID, data []byte) error {
	start := time.Now()
	err := s.backend.Create(ctx, id, data)
	s.observe("create", start, err)
	if err == nil {
		s.m.bytes.WithLabelValues("create").Add(float64(len(data)))
	}
	return err
}

func (s *Store) Store(ctx context.Context, id types.BlockID, data []byte) error {
	start := time.Now()
	err := s.backend.Store(ctx, id, data)
	s.observe("store", start, err)
	if err == nil {
		s.m.bytes.WithLabelValues("store").Add(float64(len(data)))
	}
	return err
}

func (s *Store) Load(ctx context.Context, id types.BlockID) ([]byte, error) {
	start := time.Now()
	data, err := s.backend.Load(ctx, id)
	s.observe("load", start, err)
	if err == nil {
		s.m.bytes.WithLabelValues("load").Add(float64(len(data)))
	}
	return data, err
}

func (s *Store) Remove(ctx context.Context, id types.BlockID) error {
	start := time.Now()
	err := s.backend.Remove(ctx, id)
	s.observe("remove", start, err)
	return err
}

func (s *Store) Has(ctx context.Context, id types.BlockID) (bool, error) {
	start := time.Now()
	ok, err := s.backend.Has(ctx, id)
	s.observe("has", start, err)
	return ok, err
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	return s.backend.Count(ctx)
}

func (s *Store) Close() error {
	return storage.Close(s.backend)
}
