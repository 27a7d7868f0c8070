package runtime

import (
	"bytes"
	"context"
	"log/slog"
	"runtime"
	runtimedebug "runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/featureflow/internal/runtime/errors"
)

// AffinityExecutor is the serial execution context that actually runs
// callbacks. A scope delegates every delivery to its executor and otherwise
// knows nothing about threading. Implementations must run callbacks one at a
// time; the dispatcher relies on that but cannot enforce it.
//
// IsOnAffinityContext lets the dispatcher take the same-context fast path:
// when the caller is already on the executor's context the callback runs
// inline instead of being re-submitted.
type AffinityExecutor interface {
	Run(fn func())
	IsOnAffinityContext() bool
}

// DirectExecutor runs callbacks inline on the calling goroutine. It is the
// default executor: with it, dispatch and replay behave like ordinary
// function calls and serialisation falls to the scope lock discipline of the
// callers.
type DirectExecutor struct{}

func (DirectExecutor) Run(fn func()) {
	if fn != nil {
		fn()
	}
}

func (DirectExecutor) IsOnAffinityContext() bool { return true }

// PanicHandler is called when a callback submitted to a SerialExecutor
// panics. The stack is captured at the recovery site.
type PanicHandler func(recovered any, stack []byte)

func defaultPanicHandler(recovered any, stack []byte) {
	slog.Default().Error("featureflow: panic in serial executor callback",
		"panic", recovered,
		"stack", string(stack),
	)
}

// SerialExecutor runs callbacks on a single dedicated worker goroutine, in
// submission order. It models an affinity context such as a UI loop: all
// callbacks for a scope land on one goroutine, and code already running on
// that goroutine executes further callbacks inline.
type SerialExecutor struct {
	// Configuration
	queueCapacity int
	panicHandler  PanicHandler

	// State
	mu         sync.Mutex // protects lifecycle transitions
	queue      chan func()
	quit       chan struct{}
	workerDone chan struct{}
	running    atomic.Bool
	workerID   atomic.Uint64

	// Stats
	submitted atomic.Uint64
	executed  atomic.Uint64
	panicked  atomic.Uint64
	dropped   atomic.Uint64
}

// SerialOption configures a SerialExecutor.
type SerialOption func(*SerialExecutor)

// WithQueueCapacity sets the pending callback buffer size. A full buffer
// applies backpressure to submitting goroutines.
func WithQueueCapacity(size int) SerialOption {
	return func(e *SerialExecutor) {
		if size > 0 {
			e.queueCapacity = size
		}
	}
}

// WithPanicHandler sets the handler invoked when a callback panics.
func WithPanicHandler(h PanicHandler) SerialOption {
	return func(e *SerialExecutor) {
		if h != nil {
			e.panicHandler = h
		}
	}
}

// NewSerialExecutor creates a serial executor. Start must be called before it
// accepts work.
func NewSerialExecutor(opts ...SerialOption) *SerialExecutor {
	e := &SerialExecutor{
		queueCapacity: 256,
		panicHandler:  defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the worker goroutine. If an earlier Stop gave up on a slow
// drain, Start blocks until that worker has retired.
func (e *SerialExecutor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return errspkg.ErrExecutorRunning
	}

	// A Stop that returned on context expiry leaves the old worker draining.
	// Wait for it to retire so the new worker alone owns the queue and the
	// affinity id.
	if e.workerDone != nil {
		<-e.workerDone
	}

	e.queue = make(chan func(), e.queueCapacity)
	e.quit = make(chan struct{})
	e.workerDone = make(chan struct{})
	e.running.Store(true)

	go e.worker(e.queue, e.quit, e.workerDone)

	return nil
}

// Stop shuts the worker down gracefully. Callbacks already in the buffer are
// drained before the worker exits; Stop returns early with the context error
// if the drain outlives the context.
func (e *SerialExecutor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running.Load() {
		e.mu.Unlock()
		return errspkg.ErrExecutorStopped
	}

	e.running.Store(false)
	close(e.quit)
	done := e.workerDone
	e.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run submits a callback for execution on the worker goroutine. Calls made
// from the worker itself execute inline, which keeps re-entrant submissions
// deadlock-free. After Stop, callbacks are dropped and counted.
func (e *SerialExecutor) Run(fn func()) {
	if fn == nil {
		return
	}
	if e.IsOnAffinityContext() {
		e.invoke(fn)
		return
	}
	if !e.running.Load() {
		e.dropped.Add(1)
		return
	}

	e.submitted.Add(1)
	select {
	case e.queue <- fn:
	case <-e.quit:
		e.dropped.Add(1)
	}
}

// IsOnAffinityContext reports whether the calling goroutine is the executor's
// worker.
func (e *SerialExecutor) IsOnAffinityContext() bool {
	id := e.workerID.Load()
	return id != 0 && id == goroutineID()
}

// IsRunning reports whether the worker is accepting callbacks.
func (e *SerialExecutor) IsRunning() bool {
	return e.running.Load()
}

// QueueDepth returns the number of buffered callbacks awaiting execution.
func (e *SerialExecutor) QueueDepth() int {
	if !e.running.Load() {
		return 0
	}
	return len(e.queue)
}

// SerialExecutorStats contains counters for a serial executor.
type SerialExecutorStats struct {
	Submitted  uint64 `json:"submitted"`
	Executed   uint64 `json:"executed"`
	Panicked   uint64 `json:"panicked"`
	Dropped    uint64 `json:"dropped"`
	QueueDepth int    `json:"queue_depth"`
}

// Stats returns executor statistics.
func (e *SerialExecutor) Stats() SerialExecutorStats {
	return SerialExecutorStats{
		Submitted:  e.submitted.Load(),
		Executed:   e.executed.Load(),
		Panicked:   e.panicked.Load(),
		Dropped:    e.dropped.Load(),
		QueueDepth: e.QueueDepth(),
	}
}

// worker owns one generation of the queue and quit channels. It closes done
// on exit so Stop and a later Start can wait for this generation to retire.
func (e *SerialExecutor) worker(queue chan func(), quit chan struct{}, done chan struct{}) {
	defer close(done)

	e.workerID.Store(goroutineID())
	defer e.workerID.Store(0)

	for {
		select {
		case fn := <-queue:
			e.invoke(fn)
		case <-quit:
			// Drain callbacks accepted before the shutdown signal.
			for {
				select {
				case fn := <-queue:
					e.invoke(fn)
				default:
					return
				}
			}
		}
	}
}

// invoke runs one callback with panic containment so a misbehaving callback
// cannot take down the worker.
func (e *SerialExecutor) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.panicked.Add(1)
			stack := runtimedebug.Stack()
			if e.panicHandler != nil {
				func() {
					defer func() { _ = recover() }()
					e.panicHandler(r, stack)
				}()
			}
		}
	}()

	fn()
	e.executed.Add(1)
}

// goroutineID parses the current goroutine's id out of its stack header.
// There is no public accessor for this; the header format ("goroutine N
// [state]:") has been stable across Go releases.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
