// Package mainloop runs the single goroutine that owns all UI-facing state.
// Background goroutines hand work to it with Post; per-frame work such as
// trigger polling is registered with OnFrame.
package mainloop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStarted is returned by Run on a loop that has already run.
var ErrStarted = errors.New("main loop already started")

// Loop executes posted tasks and frame callbacks on one goroutine.
type Loop struct {
	frame time.Duration
	tasks chan func()
	done  chan struct{}

	mu       sync.Mutex
	onFrame  []func()
	started  bool
	stopOnce sync.Once
}

// New creates a loop that ticks every frame interval and buffers up to queue
// posted tasks before Post blocks.
func New(frame time.Duration, queue int) *Loop {
	if frame <= 0 {
		frame = 16 * time.Millisecond
	}
	if queue <= 0 {
		queue = 256
	}
	return &Loop{
		frame: frame,
		tasks: make(chan func(), queue),
		done:  make(chan struct{}),
	}
}

// OnFrame registers fn to run once per frame, in registration order.
func (l *Loop) OnFrame(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFrame = append(l.onFrame, fn)
}

// Post queues fn for the loop goroutine. It reports false once the loop has
// stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run processes tasks and frames until ctx is cancelled. Tasks still queued
// when ctx ends are discarded.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrStarted
	}
	l.started = true
	l.mu.Unlock()

	defer l.stop()

	ticker := time.NewTicker(l.frame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.tasks:
			fn()
		case <-ticker.C:
			l.runFrame()
		}
	}
}

// Done is closed after Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) runFrame() {
	l.mu.Lock()
	callbacks := make([]func(), len(l.onFrame))
	copy(callbacks, l.onFrame)
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}
