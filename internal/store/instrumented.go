package store

import (
	"sync/atomic"
	"time"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
)

// Metrics holds timing statistics for store operations.
// Uses atomic operations for thread-safe updates without locks.
type Metrics struct {
	GetCount    atomic.Uint64
	FindCount   atomic.Uint64
	SetCount    atomic.Uint64
	DeleteCount atomic.Uint64

	// Cumulative latencies in nanoseconds
	GetLatencyNs    atomic.Uint64
	FindLatencyNs   atomic.Uint64
	SetLatencyNs    atomic.Uint64
	DeleteLatencyNs atomic.Uint64

	// Watch bookkeeping
	Subscriptions   atomic.Uint64
	Unsubscriptions atomic.Uint64
	Deliveries      atomic.Uint64
	Changes         atomic.Uint64
}

// InstrumentedStore wraps any kv.Store implementation with timing metrics
// and counts watcher deliveries.
type InstrumentedStore struct {
	store   kv.Store
	metrics *Metrics
}

// Compile-time check to ensure InstrumentedStore implements kv.Store.
var _ kv.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps a store with instrumentation.
func NewInstrumentedStore(store kv.Store) *InstrumentedStore {
	return &InstrumentedStore{
		store:   store,
		metrics: &Metrics{},
	}
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() kv.Store {
	return s.store
}

// Get delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Get(key string) (kv.Record, bool) {
	start := time.Now()
	rec, found := s.store.Get(key)
	s.observe(&s.metrics.GetCount, &s.metrics.GetLatencyNs, start)
	return rec, found
}

// Find delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Find(prefix string) []string {
	start := time.Now()
	keys := s.store.Find(prefix)
	s.observe(&s.metrics.FindCount, &s.metrics.FindLatencyNs, start)
	return keys
}

// Set delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Set(key string, value any) bool {
	start := time.Now()
	changed := s.store.Set(key, value)
	s.observe(&s.metrics.SetCount, &s.metrics.SetLatencyNs, start)
	if changed {
		s.metrics.Changes.Add(1)
	}
	return changed
}

// Delete delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Delete(key string) bool {
	start := time.Now()
	removed := s.store.Delete(key)
	s.observe(&s.metrics.DeleteCount, &s.metrics.DeleteLatencyNs, start)
	return removed
}

// On counts the subscription and every delivery made to it.
func (s *InstrumentedStore) On(target string, opts kv.WatchOptions, cb kv.Callback) (kv.Unsubscribe, error) {
	if cb == nil {
		return nil, kv.ErrInvalidCallback
	}
	off, err := s.store.On(target, opts, func(rec kv.Record) {
		s.metrics.Deliveries.Add(1)
		cb(rec)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Subscriptions.Add(1)
	return s.countUnsubscribe(off), nil
}

// Once counts the subscription and every delivery made to it. The
// removal is counted once, whether the watcher removed itself or the
// handle was called.
func (s *InstrumentedStore) Once(target string, opts kv.WatchOptions, cb kv.OnceCallback) (kv.Unsubscribe, error) {
	if cb == nil {
		return nil, kv.ErrInvalidCallback
	}
	var removed atomic.Bool
	countRemoval := func() {
		if removed.CompareAndSwap(false, true) {
			s.metrics.Unsubscriptions.Add(1)
		}
	}

	off, err := s.store.Once(target, opts, func(rec kv.Record) bool {
		s.metrics.Deliveries.Add(1)
		keep := cb(rec)
		if !keep {
			countRemoval()
		}
		return keep
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Subscriptions.Add(1)
	return func() error {
		if err := off(); err != nil {
			return err
		}
		countRemoval()
		return nil
	}, nil
}

func (s *InstrumentedStore) countUnsubscribe(off kv.Unsubscribe) kv.Unsubscribe {
	return func() error {
		if err := off(); err != nil {
			return err
		}
		s.metrics.Unsubscriptions.Add(1)
		return nil
	}
}

// Notify delegates to the wrapped store.
func (s *InstrumentedStore) Notify(key string) error {
	return s.store.Notify(key)
}

// Reset delegates to the wrapped store.
func (s *InstrumentedStore) Reset() {
	s.store.Reset()
}

func (s *InstrumentedStore) observe(count, latency *atomic.Uint64, start time.Time) {
	count.Add(1)
	latency.Add(uint64(time.Since(start).Nanoseconds()))
}

// GetMetrics returns a snapshot of current metrics.
func (s *InstrumentedStore) GetMetrics() MetricsSnapshot {
	getCount := s.metrics.GetCount.Load()
	findCount := s.metrics.FindCount.Load()
	setCount := s.metrics.SetCount.Load()
	deleteCount := s.metrics.DeleteCount.Load()

	return MetricsSnapshot{
		GetCount:         getCount,
		FindCount:        findCount,
		SetCount:         setCount,
		DeleteCount:      deleteCount,
		GetAvgLatency:    s.avgLatency(s.metrics.GetLatencyNs.Load(), getCount),
		FindAvgLatency:   s.avgLatency(s.metrics.FindLatencyNs.Load(), findCount),
		SetAvgLatency:    s.avgLatency(s.metrics.SetLatencyNs.Load(), setCount),
		DeleteAvgLatency: s.avgLatency(s.metrics.DeleteLatencyNs.Load(), deleteCount),
		Changes:          s.metrics.Changes.Load(),
		Subscriptions:    s.metrics.Subscriptions.Load(),
		Unsubscriptions:  s.metrics.Unsubscriptions.Load(),
		Deliveries:       s.metrics.Deliveries.Load(),
	}
}

// ResetMetrics clears all metrics counters.
func (s *InstrumentedStore) ResetMetrics() {
	for _, c := range []*atomic.Uint64{
		&s.metrics.GetCount, &s.metrics.FindCount, &s.metrics.SetCount, &s.metrics.DeleteCount,
		&s.metrics.GetLatencyNs, &s.metrics.FindLatencyNs, &s.metrics.SetLatencyNs, &s.metrics.DeleteLatencyNs,
		&s.metrics.Subscriptions, &s.metrics.Unsubscriptions, &s.metrics.Deliveries, &s.metrics.Changes,
	} {
		c.Store(0)
	}
}

func (s *InstrumentedStore) avgLatency(totalNs, count uint64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(totalNs / count)
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	GetCount         uint64
	FindCount        uint64
	SetCount         uint64
	DeleteCount      uint64
	GetAvgLatency    time.Duration
	FindAvgLatency   time.Duration
	SetAvgLatency    time.Duration
	DeleteAvgLatency time.Duration
	Changes          uint64
	Subscriptions    uint64
	Unsubscriptions  uint64
	Deliveries       uint64
}
