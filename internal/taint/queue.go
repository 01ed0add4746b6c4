// Package taint defers engine mutations requested from arbitrary goroutines
// to known safe points in the simulation step.
package taint

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"regionsim/physics/internal/logging"
)

// Callback is a deferred engine mutation.
type Callback = func()

// Entry pairs a diagnostic identifier with its deferred callback.
type Entry struct {
	Ident    string
	Callback Callback
}

type postKey struct {
	ident  string
	handle uint32
}

// postSet keeps keyed entries in first-insertion order.
type postSet struct {
	order   []postKey
	entries map[postKey]Entry
}

func newPostSet() *postSet {
	return &postSet{entries: make(map[postKey]Entry)}
}

func (p *postSet) put(key postKey, entry Entry) {
	if _, exists := p.entries[key]; !exists {
		p.order = append(p.order, key)
	}
	p.entries[key] = entry
}

// Queue collects deferred mutations. Enqueue operations are safe from any goroutine;
// Flush must only be called from the goroutine that owns the engine.
type Queue struct {
	mu      sync.Mutex
	regular []Entry
	post    *postSet

	inWindow atomic.Bool
	log      *logging.Logger
	trace    func(ident string)
}

// Option customises a Queue.
type Option func(*Queue)

// WithTrace installs a hook invoked with the identifier of every replayed entry.
func WithTrace(trace func(ident string)) Option {
	return func(q *Queue) {
		q.trace = trace
	}
}

// New constructs an empty queue.
func New(logger *logging.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = logging.L()
	}
	q := &Queue{post: newPostSet(), log: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Enqueue appends a mutation to the regular list. The callback never runs inline.
func (q *Queue) Enqueue(ident string, callback Callback) {
	if q == nil || callback == nil {
		return
	}
	q.mu.Lock()
	q.regular = append(q.regular, Entry{Ident: ident, Callback: callback})
	q.mu.Unlock()
}

// EnqueueConditional runs the callback immediately when the caller is already inside a
// mutation-safe window and defers it otherwise.
func (q *Queue) EnqueueConditional(inTaintWindow bool, ident string, callback Callback) {
	if q == nil || callback == nil {
		return
	}
	if inTaintWindow {
		q.run(Entry{Ident: ident, Callback: callback}, "immediate")
		return
	}
	q.Enqueue(ident, callback)
}

// EnqueuePost schedules a mutation that runs after the regular entries of the same flush.
// A later request with the same identifier and handle replaces the pending one.
func (q *Queue) EnqueuePost(ident string, handle uint32, callback Callback) {
	if q == nil || callback == nil {
		return
	}
	unique := ident + "-" + strconv.FormatUint(uint64(handle), 10)
	q.mu.Lock()
	q.post.put(postKey{ident: ident, handle: handle}, Entry{Ident: unique, Callback: callback})
	q.mu.Unlock()
}

// Pending reports how many regular and post entries wait for the next flush.
func (q *Queue) Pending() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.regular) + len(q.post.order)
}

// Flush replays the regular entries and then the post entries, returning how many ran.
// Entries enqueued while flushing wait for the next call.
func (q *Queue) Flush() int {
	if q == nil {
		return 0
	}
	return q.flushRegular() + q.flushPost()
}

func (q *Queue) flushRegular() int {
	//1.- Swap in a fresh list under the lock so concurrent enqueues land in the next frame.
	q.mu.Lock()
	batch := q.regular
	q.regular = nil
	q.mu.Unlock()

	//2.- Replay outside the lock; callbacks may enqueue more work.
	for _, entry := range batch {
		q.run(entry, "regular")
	}
	return len(batch)
}

func (q *Queue) flushPost() int {
	q.mu.Lock()
	batch := q.post
	q.post = newPostSet()
	q.mu.Unlock()

	for _, key := range batch.order {
		q.run(batch.entries[key], "post")
	}
	return len(batch.order)
}

// run executes one entry, converting a panic into a logged error so the rest of the batch proceeds.
func (q *Queue) run(entry Entry, phase string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			q.log.Error("deferred mutation failed",
				logging.String("ident", entry.Ident),
				logging.String("phase", phase),
				logging.String("panic", fmt.Sprint(recovered)),
			)
		}
	}()
	if q.trace != nil {
		q.trace(entry.Ident)
	}
	entry.Callback()
}

// EnterWindow marks the start of a mutation-safe window.
func (q *Queue) EnterWindow() { q.inWindow.Store(true) }

// LeaveWindow marks the end of a mutation-safe window.
func (q *Queue) LeaveWindow() { q.inWindow.Store(false) }

// InWindow reports whether execution is inside a mutation-safe window. Debug aid only.
func (q *Queue) InWindow() bool {
	if q == nil {
		return false
	}
	return q.inWindow.Load()
}

// AssertInWindow logs an error when called outside a mutation-safe window and returns the flag.
func (q *Queue) AssertInWindow(where string) bool {
	if q == nil {
		return false
	}
	inside := q.inWindow.Load()
	if !inside {
		q.log.Error("engine mutation outside taint window", logging.String("where", where))
	}
	return inside
}
