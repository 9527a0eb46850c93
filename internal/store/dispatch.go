package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/heysubinoy/pyazwatch/pkg/log"
)

// dispatcher runs deferred tasks one at a time, in the order they were
// queued, on a dedicated goroutine. Store operations only ever enqueue, so
// callbacks never run while the store lock is held and may call back into
// the store freely.
type dispatcher struct {
	mu      sync.Mutex
	tasks   []func()
	pending int // queued plus running
	waiters []chan struct{}
	closed  bool

	wake chan struct{}
	done chan struct{}
	stop chan struct{}
	log  log.Logger
}

func newDispatcher(logger log.Logger) *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		stop: make(chan struct{}),
		log:  logger,
	}
	go d.run()
	return d
}

// enqueue schedules task. It never blocks and never runs task inline.
func (d *dispatcher) enqueue(task func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.tasks = append(d.tasks, task)
	d.pending++
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.tasks) == 0 {
			d.mu.Unlock()
			select {
			case <-d.wake:
				continue
			case <-d.stop:
				d.mu.Lock()
				empty := len(d.tasks) == 0
				d.mu.Unlock()
				if empty {
					return
				}
				continue
			}
		}
		task := d.tasks[0]
		d.tasks[0] = nil
		d.tasks = d.tasks[1:]
		d.mu.Unlock()

		d.execute(task)

		d.mu.Lock()
		d.pending--
		if d.pending == 0 {
			for _, w := range d.waiters {
				close(w)
			}
			d.waiters = nil
		}
		d.mu.Unlock()
	}
}

func (d *dispatcher) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Log(log.LevelWarn, "Watcher callback panicked", log.Fields{"panic": fmt.Sprint(r)})
		}
	}()
	task()
}

// flush blocks until every queued task, including tasks queued by running
// tasks, has completed. It must not be called from inside a task.
func (d *dispatcher) flush(ctx context.Context) error {
	d.mu.Lock()
	if d.pending == 0 {
		d.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	d.waiters = append(d.waiters, w)
	d.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close lets already queued tasks finish, then stops the goroutine.
// Tasks enqueued afterwards are discarded.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stop)
	<-d.done
}
