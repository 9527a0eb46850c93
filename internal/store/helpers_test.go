package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
	"github.com/heysubinoy/pyazwatch/pkg/log"
)

type logEntry struct {
	level  log.Level
	msg    string
	fields log.Fields
}

type logRecorder struct {
	mu      sync.Mutex
	entries []logEntry
}

func (r *logRecorder) Log(level log.Level, msg string, fields log.Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (r *logRecorder) all() []logEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]logEntry(nil), r.entries...)
}

func (r *logRecorder) find(msg string) []logEntry {
	var out []logEntry
	for _, e := range r.all() {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func (r *logRecorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

type collector struct {
	mu   sync.Mutex
	recs []kv.Record
}

func (c *collector) cb(rec kv.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
}

func (c *collector) all() []kv.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]kv.Record(nil), c.recs...)
}

func newTestStore(t *testing.T) (*MemStore, *logRecorder) {
	t.Helper()
	logs := &logRecorder{}
	s := NewMemStore(Options{Logger: logs})
	t.Cleanup(s.Close)
	return s, logs
}

func flush(t *testing.T, s *MemStore) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

// blockDispatcher parks the dispatcher inside a callback until the
// returned function is called.
func blockDispatcher(t *testing.T, s *MemStore) func() {
	t.Helper()
	release := make(chan struct{})
	entered := make(chan struct{})
	_, err := s.On("__gate", kv.WatchOptions{NoInitial: true}, func(kv.Record) {
		close(entered)
		<-release
	})
	require.NoError(t, err)
	s.Set("__gate", true)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not pick up gate task")
	}
	var once sync.Once
	return func() { once.Do(func() { close(release) }) }
}
