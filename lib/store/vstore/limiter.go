package vstore

import (
	"sync"
	"time"
)

type limiterMode int

const (
	// modeDebounce: only the last call within a quiet window executes, the
	// timer resets on every call.
	modeDebounce limiterMode = iota
	// modeThrottle: the first call executes immediately, later calls within
	// the window coalesce into exactly one trailing execution.
	modeThrottle
)

// limiter rate-limits the write path of one store instance. The pending
// state is explicit per instance, not hidden in closures, so flush and
// cancel have well-defined semantics. At most one invocation is pending at
// any time: new calls reset or are absorbed into the pending one, never
// queued in parallel.
type limiter[T any] struct {
	mode   limiterMode
	window time.Duration
	exec   func(T) error

	mu       sync.Mutex
	timer    *time.Timer
	pending  bool
	pendingV T
	lastExec time.Time
}

func newLimiter[T any](mode limiterMode, window time.Duration, exec func(T) error) *limiter[T] {
	return &limiter[T]{
		mode:   mode,
		window: window,
		exec:   exec,
	}
}

// submit hands a value to the limiter. In throttle mode a leading call
// executes synchronously and its error is returned; deferred executions
// report their errors through the store's error callback instead.
func (l *limiter[T]) submit(value T) error {
	l.mu.Lock()

	if l.mode == modeThrottle && !l.pending && time.Since(l.lastExec) >= l.window {
		l.lastExec = time.Now()
		l.mu.Unlock()
		return l.exec(value)
	}

	l.pendingV = value
	if l.pending {
		// Absorbed into the already-pending invocation. Debouncing restarts
		// the quiet window, throttling keeps the trailing edge in place.
		if l.mode == modeDebounce {
			l.resetTimerLocked()
			l.timer = time.AfterFunc(l.window, l.fire)
		}
		l.mu.Unlock()
		return nil
	}
	l.pending = true

	delay := l.window
	if l.mode == modeThrottle {
		if since := time.Since(l.lastExec); since < l.window {
			delay = l.window - since
		}
	}
	l.timer = time.AfterFunc(delay, l.fire)
	l.mu.Unlock()
	return nil
}

// fire executes the pending invocation from the timer goroutine.
func (l *limiter[T]) fire() {
	l.mu.Lock()
	if !l.pending {
		l.mu.Unlock()
		return
	}
	value := l.pendingV
	l.pending = false
	l.timer = nil
	l.lastExec = time.Now()
	l.mu.Unlock()

	// The error has already been reported by the write path.
	_ = l.exec(value)
}

// resetTimerLocked stops a scheduled timer. Caller must hold l.mu.
func (l *limiter[T]) resetTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// flush synchronously executes the pending invocation, if any.
func (l *limiter[T]) flush() error {
	l.mu.Lock()
	if !l.pending {
		l.mu.Unlock()
		return nil
	}
	l.resetTimerLocked()
	value := l.pendingV
	l.pending = false
	l.lastExec = time.Now()
	l.mu.Unlock()

	return l.exec(value)
}

// cancel drops the pending invocation without executing it.
func (l *limiter[T]) cancel() {
	l.mu.Lock()
	l.resetTimerLocked()
	l.pending = false
	l.mu.Unlock()
}
