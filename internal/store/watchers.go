package store

import (
	"fmt"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
	"github.com/heysubinoy/pyazwatch/pkg/log"
)

// subscriber is one registration in a watcherSet. The same subscriber is
// shared between a range set and the point sets it fans out to.
type subscriber struct {
	id     uint64
	name   string
	notify func(kv.Record)
}

// watcherSet is an insertion-ordered set of subscribers for one key or
// one prefix.
type watcherSet struct {
	order    []*subscriber
	index    map[uint64]int
	notified uint64
}

func newWatcherSet() *watcherSet {
	return &watcherSet{index: make(map[uint64]int)}
}

func (w *watcherSet) size() int {
	return len(w.order)
}

func (w *watcherSet) has(id uint64) bool {
	_, ok := w.index[id]
	return ok
}

// add registers sub. Registering the same subscriber twice is an error.
func (w *watcherSet) add(sub *subscriber) error {
	if sub == nil || sub.notify == nil {
		return kv.ErrInvalidCallback
	}
	if w.has(sub.id) {
		return kv.ErrDuplicateSubscriber
	}
	w.index[sub.id] = len(w.order)
	w.order = append(w.order, sub)
	return nil
}

// remove unregisters the subscriber with the given id and reports whether
// it was present.
func (w *watcherSet) remove(id uint64) bool {
	pos, ok := w.index[id]
	if !ok {
		return false
	}
	copy(w.order[pos:], w.order[pos+1:])
	w.order[len(w.order)-1] = nil
	w.order = w.order[:len(w.order)-1]
	delete(w.index, id)
	for i := pos; i < len(w.order); i++ {
		w.index[w.order[i].id] = i
	}
	return true
}

// snapshot returns the subscribers in registration order.
func (w *watcherSet) snapshot() []*subscriber {
	out := make([]*subscriber, len(w.order))
	copy(out, w.order)
	return out
}

// notify schedules delivery of data to the subscribers registered right
// now. Subscribers removed before the delivery runs still receive it;
// subscribers added afterwards do not.
func (w *watcherSet) notify(d *dispatcher, logger log.Logger, data kv.Record) {
	w.notified++
	subs := w.snapshot()
	if len(subs) == 0 {
		return
	}
	d.enqueue(func() {
		for _, sub := range subs {
			logger.Log(log.LevelDebug, "Notifying watcher", log.Fields{
				"watcher_id": sub.name,
				"key":        data.Key,
				"revision":   data.Revision,
			})
			sub.deliver(logger, data)
		}
	})
}

// deliver invokes the callback, containing a panic so the remaining
// subscribers of the same notification are still served.
func (s *subscriber) deliver(logger log.Logger, data kv.Record) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log(log.LevelWarn, "Watcher callback panicked", log.Fields{
				"watcher_id": s.name,
				"key":        data.Key,
				"panic":      fmt.Sprint(r),
			})
		}
	}()
	s.notify(data)
}
