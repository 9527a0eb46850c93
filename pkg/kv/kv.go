package kv

// Record is the current state of one key. A nil Value means the key has
// no value (absent); such records only exist while watchers hold them.
type Record struct {
	Key      string `json:"key"`
	Value    any    `json:"value"`
	Revision uint64 `json:"revision"`
}

// Absent reports whether the record carries no value.
func (r Record) Absent() bool {
	return r.Value == nil
}

// Callback receives change notifications. It is always invoked
// asynchronously, never from inside the Store call that triggered it.
type Callback func(Record)

// OnceCallback is used by Store.Once. Returning true keeps the watcher
// registered for another delivery.
type OnceCallback func(Record) bool

// Unsubscribe detaches a watcher. Calling it more than once returns
// ErrUnknownSubscriber.
type Unsubscribe func() error

// WatchOptions tunes a subscription.
type WatchOptions struct {
	// ID tags the watcher in log output.
	ID string
	// Range treats the target as a key prefix.
	Range bool
	// NoInitial suppresses delivery of the current value on subscribe.
	NoInitial bool
	// HaveRevision suppresses the initial delivery when the caller already
	// holds this revision or a later one. Ignored for range watchers.
	HaveRevision *uint64
}

// Revision is a helper for filling WatchOptions.HaveRevision.
func Revision(rev uint64) *uint64 {
	return &rev
}

// Store defines the interface for a watchable key-value store.
// Implementations of this interface can be swapped out or wrapped,
// e.g. with instrumentation.
type Store interface {
	// Get returns the record for key and true if it exists. A record kept
	// alive by watchers after a delete is returned with a nil Value.
	Get(key string) (Record, bool)

	// Find returns the keys starting with prefix, in ascending order.
	// An empty prefix returns every key.
	Find(prefix string) []string

	// Set stores value under key and reports whether anything changed.
	// Composite values always count as a change.
	Set(key string, value any) bool

	// Delete removes key. When the key has watchers its value is cleared
	// instead, so they observe the removal first.
	Delete(key string) bool

	// On registers a watcher on a key, or on a prefix if opts.Range is set.
	On(target string, opts WatchOptions, cb Callback) (Unsubscribe, error)

	// Once is like On, but the watcher removes itself after a delivery
	// unless cb returns true.
	Once(target string, opts WatchOptions, cb OnceCallback) (Unsubscribe, error)

	// Notify re-delivers the current record of key to its watchers.
	Notify(key string) error

	// Reset drops every record and watcher without notifying anyone.
	Reset()
}
