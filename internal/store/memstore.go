package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
	"github.com/heysubinoy/pyazwatch/pkg/log"
)

// Options configures a MemStore.
type Options struct {
	// Logger receives record and watcher lifecycle events. Nil discards them.
	Logger log.Logger
}

// MemStore is an in-memory implementation of the kv.Store interface with
// point and range watchers.
//
// Every operation holds the store mutex until it returns. Watcher callbacks
// run later on a single dispatcher goroutine, in the order notifications
// were scheduled, without the mutex held.
type MemStore struct {
	mu      sync.Mutex
	id      string
	records map[string]*record
	points  map[string]*watcherSet
	ranges  map[string]*watcherSet
	nextSub uint64
	// notified counts notifications over the store's lifetime.
	notified uint64

	log  log.Logger
	disp *dispatcher
}

// Compile-time check to ensure MemStore implements kv.Store.
var _ kv.Store = (*MemStore)(nil)

// NewMemStore creates and returns a new MemStore instance. Call Close to
// stop its dispatcher.
func NewMemStore(opts Options) *MemStore {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop{}
	}
	return &MemStore{
		id:      uuid.Must(uuid.NewV7()).String(),
		records: make(map[string]*record),
		points:  make(map[string]*watcherSet),
		ranges:  make(map[string]*watcherSet),
		log:     logger,
		disp:    newDispatcher(logger),
	}
}

// ID returns the unique identifier of this store instance.
func (s *MemStore) ID() string {
	return s.id
}

// Get retrieves the record for key.
func (s *MemStore) Get(key string) (kv.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return kv.Record{}, false
	}
	return rec.data, true
}

// Find returns the sorted keys starting with prefix.
func (s *MemStore) Find(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.findLocked(prefix)
}

func (s *MemStore) findLocked(prefix string) []string {
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

// Set stores value under key and reports whether it changed. Setting nil
// on a key nobody watches removes the record.
func (s *MemStore) Set(key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == nil && !s.watchedLocked(key) {
		return s.deleteLocked(key)
	}
	return s.setLocked(key, value)
}

func (s *MemStore) watchedLocked(key string) bool {
	set := s.points[key]
	return set != nil && set.size() > 0
}

func (s *MemStore) setLocked(key string, value any) bool {
	rec, ok := s.records[key]
	if !ok {
		rec = newRecord(key, value)
		s.records[key] = rec
		s.logRecord("Record created", rec)
		s.wireRangesLocked(key)
	} else if rec.setValue(value) {
		s.logRecord("Record updated", rec)
	} else {
		return false
	}

	s.notifyLocked(rec)
	return true
}

func (s *MemStore) logRecord(msg string, rec *record) {
	s.log.Log(log.LevelDebug, msg, log.Fields{"key": rec.data.Key, "revision": rec.data.Revision})
	s.log.Log(log.LevelTrace, "Record data", log.Fields{
		"key":      rec.data.Key,
		"data":     rec.data.Value,
		"revision": rec.data.Revision,
	})
}

// wireRangesLocked attaches the subscribers of every live prefix matching
// key to the key's point set. It runs before the creation notification so
// range watchers receive it through the regular point path.
func (s *MemStore) wireRangesLocked(key string) {
	prefixes := make([]string, 0, len(s.ranges))
	for prefix := range s.ranges {
		if strings.HasPrefix(key, prefix) {
			prefixes = append(prefixes, prefix)
		}
	}
	slices.Sort(prefixes)

	for _, prefix := range prefixes {
		for _, sub := range s.ranges[prefix].snapshot() {
			err := s.addPointLocked(key, sub, kv.WatchOptions{NoInitial: true})
			if err != nil && !errors.Is(err, kv.ErrDuplicateSubscriber) {
				s.log.Log(log.LevelWarn, "Range watcher wiring failed", log.Fields{
					"key":        key,
					"key_start":  prefix,
					"watcher_id": sub.name,
					"error":      err.Error(),
				})
			}
		}
	}
}

// Delete removes key, or clears its value when point watchers still
// reference it. The cleared record goes away when its last watcher leaves.
func (s *MemStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watchedLocked(key) {
		changed := s.setLocked(key, nil)
		if changed {
			s.log.Log(log.LevelDebug, "Record cleared", log.Fields{"key": key})
		}
		return changed
	}
	return s.deleteLocked(key)
}

func (s *MemStore) deleteLocked(key string) bool {
	if _, ok := s.records[key]; !ok {
		return false
	}
	delete(s.records, key)
	s.log.Log(log.LevelDebug, "Record deleted", log.Fields{"key": key})
	return true
}

// On registers cb as a point watcher on target, or as a range watcher on
// the prefix target when opts.Range is set.
func (s *MemStore) On(target string, opts kv.WatchOptions, cb kv.Callback) (kv.Unsubscribe, error) {
	if cb == nil {
		return nil, kv.ErrInvalidCallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	sub := &subscriber{id: s.nextSub, name: opts.ID, notify: cb}

	if opts.Range {
		return s.addRangeLocked(target, opts, sub)
	}

	if err := s.addPointLocked(target, sub, opts); err != nil {
		return nil, err
	}
	return func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if !s.removePointLocked(target, sub) {
			return fmt.Errorf("unsubscribe %q: %w", target, kv.ErrUnknownSubscriber)
		}
		return nil
	}, nil
}

func (s *MemStore) addPointLocked(key string, sub *subscriber, opts kv.WatchOptions) error {
	set, ok := s.points[key]
	if !ok {
		set = newWatcherSet()
	}
	if err := set.add(sub); err != nil {
		return err
	}
	if !ok {
		s.points[key] = set
	}
	s.log.Log(log.LevelDebug, "Watcher added", log.Fields{
		"key":        key,
		"watcher_id": sub.name,
		"watchers":   set.size(),
	})

	if opts.NoInitial {
		return nil
	}
	rec, ok := s.records[key]
	if !ok || rec.data.Absent() {
		return nil
	}
	if opts.HaveRevision != nil && *opts.HaveRevision >= rec.data.Revision {
		return nil
	}

	data := rec.data
	s.disp.enqueue(func() {
		s.log.Log(log.LevelDebug, "Notifying watcher with initial data", log.Fields{
			"watcher_id": sub.name,
			"key":        key,
		})
		sub.deliver(s.log, data)
	})
	return nil
}

// removePointLocked detaches sub from key. An emptied set is dropped, and
// a record without value is evicted along with it.
func (s *MemStore) removePointLocked(key string, sub *subscriber) bool {
	set, ok := s.points[key]
	if !ok || !set.remove(sub.id) {
		return false
	}
	s.log.Log(log.LevelDebug, "Watcher removed", log.Fields{
		"key":        key,
		"watcher_id": sub.name,
		"watchers":   set.size(),
	})

	if set.size() > 0 {
		return true
	}
	delete(s.points, key)
	if rec, ok := s.records[key]; ok && rec.data.Absent() {
		delete(s.records, key)
		s.log.Log(log.LevelDebug, "Record deleted", log.Fields{"key": key})
	}
	return true
}

func (s *MemStore) addRangeLocked(prefix string, opts kv.WatchOptions, sub *subscriber) (kv.Unsubscribe, error) {
	set, ok := s.ranges[prefix]
	if !ok {
		set = newWatcherSet()
	}
	if err := set.add(sub); err != nil {
		return nil, err
	}
	if !ok {
		s.ranges[prefix] = set
	}
	s.log.Log(log.LevelDebug, "Range watcher added", log.Fields{
		"key_start":  prefix,
		"watcher_id": sub.name,
		"watchers":   set.size(),
	})

	pointOpts := kv.WatchOptions{ID: opts.ID, NoInitial: opts.NoInitial}
	for _, key := range s.findLocked(prefix) {
		if err := s.addPointLocked(key, sub, pointOpts); err != nil {
			return nil, err
		}
	}

	return func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		set, ok := s.ranges[prefix]
		if !ok || !set.remove(sub.id) {
			return fmt.Errorf("unsubscribe range %q: %w", prefix, kv.ErrUnknownSubscriber)
		}
		s.log.Log(log.LevelDebug, "Range watcher removed", log.Fields{
			"key_start":  prefix,
			"watcher_id": sub.name,
			"watchers":   set.size(),
		})
		if set.size() == 0 {
			delete(s.ranges, prefix)
		}

		for _, key := range s.findLocked(prefix) {
			s.removePointLocked(key, sub)
		}
		return nil
	}, nil
}

// Once registers a watcher that removes itself after its first delivery,
// unless cb returns true. Deliveries already scheduled when it removed
// itself are dropped.
func (s *MemStore) Once(target string, opts kv.WatchOptions, cb kv.OnceCallback) (kv.Unsubscribe, error) {
	if cb == nil {
		return nil, kv.ErrInvalidCallback
	}

	var (
		mu   sync.Mutex
		off  kv.Unsubscribe
		done bool
	)

	handle, err := s.On(target, opts, func(rec kv.Record) {
		mu.Lock()
		if done {
			mu.Unlock()
			return
		}
		mu.Unlock()

		if cb(rec) {
			return
		}

		mu.Lock()
		if done {
			mu.Unlock()
			return
		}
		done = true
		unsubscribe := off
		mu.Unlock()

		// A nil handle means On has not returned yet; Once finishes the job.
		if unsubscribe != nil {
			if err := unsubscribe(); err != nil {
				s.log.Log(log.LevelDebug, "Once watcher already removed", log.Fields{"key": target, "watcher_id": opts.ID})
			}
		}
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	off = handle
	expired := done
	mu.Unlock()

	if expired {
		_ = handle()
	}

	return func() error {
		mu.Lock()
		done = true
		mu.Unlock()
		return handle()
	}, nil
}

// Notify re-delivers the current record of key to its point watchers.
func (s *MemStore) Notify(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return fmt.Errorf("notify %q: %w", key, kv.ErrUnknownKey)
	}
	s.notifyLocked(rec)
	return nil
}

func (s *MemStore) notifyLocked(rec *record) {
	if set, ok := s.points[rec.data.Key]; ok {
		set.notify(s.disp, s.log, rec.data)
		s.notified++
	}
}

// Reset drops all records and watchers. Outstanding unsubscribe handles
// fail with kv.ErrUnknownSubscriber afterwards.
func (s *MemStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Log(log.LevelWarn, "Store reset", nil)
	s.records = make(map[string]*record)
	s.points = make(map[string]*watcherSet)
	s.ranges = make(map[string]*watcherSet)
}

// Flush waits until every scheduled notification has been delivered,
// including those scheduled by callbacks in the meantime. It must not be
// called from a watcher callback.
func (s *MemStore) Flush(ctx context.Context) error {
	return s.disp.flush(ctx)
}

// Close delivers what is already scheduled and stops the dispatcher.
// Notifications scheduled after Close are dropped.
func (s *MemStore) Close() {
	s.disp.close()
}

// Stats is a point-in-time view of the store's size.
type Stats struct {
	Records       int    `json:"records"`
	WatchedKeys   int    `json:"watched_keys"`
	WatchedRanges int    `json:"watched_ranges"`
	Notifications uint64 `json:"notifications"`
}

// Stats returns current sizes. Notifications is cumulative and survives
// watcher eviction and Reset.
func (s *MemStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Records:       len(s.records),
		WatchedKeys:   len(s.points),
		WatchedRanges: len(s.ranges),
		Notifications: s.notified,
	}
}
