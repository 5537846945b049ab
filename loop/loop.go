// Package loop provides a single-goroutine scheduler that every other
// package in this engine runs its callbacks on, preserving the
// single-threaded-cooperative model the original event-driven client
// relied on.
package loop

import (
	"sync"
	"time"
)

// TimerHandle is returned by Schedule and cancels the scheduled call.
// Cancel is idempotent and safe to call from any goroutine.
type TimerHandle struct {
	timer *time.Timer
	loop  *Loop
	id    uint64

	mu        sync.Mutex
	cancelled bool
}

// Cancel stops the underlying timer and, if the call has not yet been
// dispatched onto the loop's run queue, drops it.
func (h *TimerHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	h.cancelled = true
	h.timer.Stop()
	h.loop.cancel(h.id)
}

// Loop runs scheduled functions on a single goroutine. Every constructor in
// client, pool and tcp takes a *Loop explicitly; there is no ambient global
// those packages reach for.
type Loop struct {
	runq chan func()
	stop chan struct{}
	done chan struct{}

	mu        sync.Mutex
	nextID    uint64
	cancelled map[uint64]bool
	stopHooks []func()
	stopped   bool
}

// New creates a Loop and starts its dispatch goroutine.
func New() *Loop {
	l := &Loop{
		runq:      make(chan func(), 256),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		cancelled: make(map[uint64]bool),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.runq:
			fn()
		case <-l.stop:
			l.drainHooks()
			return
		}
	}
}

func (l *Loop) drainHooks() {
	l.mu.Lock()
	hooks := l.stopHooks
	l.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}

// Schedule arranges for fn to run on the loop goroutine after d has
// elapsed. The returned TimerHandle cancels it.
func (l *Loop) Schedule(d time.Duration, fn func()) *TimerHandle {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.mu.Unlock()

	h := &TimerHandle{loop: l, id: id}
	h.timer = time.AfterFunc(d, func() {
		l.mu.Lock()
		if l.cancelled[id] {
			delete(l.cancelled, id)
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
		select {
		case l.runq <- fn:
		case <-l.done:
		}
	})
	return h
}

func (l *Loop) cancel(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelled[id] = true
}

// Post queues fn to run on the loop goroutine as soon as it is free,
// without a timer.
func (l *Loop) Post(fn func()) {
	select {
	case l.runq <- fn:
	case <-l.done:
	}
}

// OnStop registers fn to run, on the loop goroutine, when Stop is called.
// Hooks run in registration order before the loop goroutine exits.
func (l *Loop) OnStop(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		fn()
		return
	}
	l.stopHooks = append(l.stopHooks, fn)
}

// Stop runs every registered stop hook and halts the dispatch goroutine.
// It blocks until both have completed. Calling Stop more than once is safe.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.stop)
	<-l.done
}

var (
	defaultOnce sync.Once
	defaultLoop *Loop
)

// Default returns a process-wide Loop for CLI convenience. Library code
// (client, pool, tcp) never calls this; it always takes a *Loop from its
// caller.
func Default() *Loop {
	defaultOnce.Do(func() {
		defaultLoop = New()
	})
	return defaultLoop
}
