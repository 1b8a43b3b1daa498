// Package audit writes the append-only agent action log.
//
// Writes are fire-and-forget: callers never block on persistence and never
// see a persistence error. Failures are reported to the operational log only.
package audit

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// Logger records agent lifecycle events.
type Logger interface {
	Log(agentName, actionType string, details map[string]any)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Log(string, string, map[string]any) {}

// DefaultBufferSize is the queue length of a Recorder.
const DefaultBufferSize = 1024

type item struct {
	action  *domain.AgentAction
	flushed chan struct{}
}

// Recorder persists audit entries asynchronously to an ActionLogStore.
type Recorder struct {
	store   storage.ActionLogStore
	logger  *log.Logger
	now     func() time.Time
	timeout time.Duration
	onFail  func(reason string)

	queue   chan item
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the operational logger used for persistence warnings.
func WithLogger(l *log.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithBufferSize sets the queue length.
func WithBufferSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan item, n)
		}
	}
}

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

// WithFailureHook is called after every failed or dropped write with the
// reason: "write" for a store error, "dropped" for a discarded entry.
func WithFailureHook(fn func(reason string)) Option {
	return func(r *Recorder) { r.onFail = fn }
}

// NewRecorder creates a recorder and starts its writer goroutine.
func NewRecorder(store storage.ActionLogStore, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  log.New(log.Writer(), "[audit] ", log.LstdFlags),
		now:     time.Now,
		timeout: 5 * time.Second,
		queue:   make(chan item, DefaultBufferSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Log enqueues an entry. It never blocks: a full queue drops the entry with a warning.
func (r *Recorder) Log(agentName, actionType string, details map[string]any) {
	a := &domain.AgentAction{
		AgentName:  agentName,
		ActionType: actionType,
		Details:    details,
		Timestamp:  r.now().UTC(),
	}

	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		r.drop(a, "recorder closed")
		return
	}

	select {
	case r.queue <- item{action: a}:
	default:
		r.drop(a, "queue full")
	}
}

// Flush waits until every entry enqueued before the call has been written or ctx is done.
func (r *Recorder) Flush(ctx context.Context) error {
	r.closeMu.RLock()
	if r.closed {
		r.closeMu.RUnlock()
		return nil
	}
	marker := item{flushed: make(chan struct{})}
	select {
	case r.queue <- marker:
	case <-ctx.Done():
		r.closeMu.RUnlock()
		return ctx.Err()
	}
	r.closeMu.RUnlock()

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the writer. Safe to call more than once.
func (r *Recorder) Close() error {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.closeMu.Unlock()

	<-r.done
	return nil
}

// Stats returns written, failed and dropped counts.
func (r *Recorder) Stats() (written, failed, dropped int64) {
	return r.written.Load(), r.failed.Load(), r.dropped.Load()
}

func (r *Recorder) run() {
	defer close(r.done)
	for it := range r.queue {
		if it.flushed != nil {
			close(it.flushed)
			continue
		}
		r.write(it.action)
	}
}

func (r *Recorder) write(a *domain.AgentAction) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.store.Append(ctx, a); err != nil {
		r.failed.Add(1)
		r.logger.Printf("WARN: persist %s/%s: %v", a.AgentName, a.ActionType, err)
		if r.onFail != nil {
			r.onFail("write")
		}
		return
	}
	r.written.Add(1)
}

func (r *Recorder) drop(a *domain.AgentAction, reason string) {
	r.dropped.Add(1)
	r.logger.Printf("WARN: dropped %s/%s: %s", a.AgentName, a.ActionType, reason)
	if r.onFail != nil {
		r.onFail("dropped")
	}
}
