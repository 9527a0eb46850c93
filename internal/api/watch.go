package api

import (
	"sync"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
)

const defaultWatchBuffer = 256

// watchStream buffers deliveries for one remote watcher. The store's
// dispatcher must never wait on a slow client, so a full buffer ends the
// stream instead of blocking.
type watchStream struct {
	events   chan kv.Record
	overflow chan struct{}
	once     sync.Once
}

func newWatchStream(size int) *watchStream {
	if size <= 0 {
		size = defaultWatchBuffer
	}
	return &watchStream{
		events:   make(chan kv.Record, size),
		overflow: make(chan struct{}),
	}
}

func (w *watchStream) deliver(rec kv.Record) {
	select {
	case w.events <- rec:
	default:
		w.once.Do(func() { close(w.overflow) })
	}
}

// watchRequest is the transport-neutral form of a watch subscription.
type watchRequest struct {
	Target  string
	Options kv.WatchOptions
}

func (r watchRequest) valid() bool {
	return r.Target != "" || r.Options.Range
}
