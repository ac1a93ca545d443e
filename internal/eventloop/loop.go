// Package eventloop runs every backend callback on a single goroutine.
//
// Producers on other goroutines (udev, logind, vblank readers, IPC) hand work
// to the loop with Post; one-shot timers are delivered the same way, so
// callbacks never run concurrently with each other.
package eventloop

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Token identifies a scheduled timer.
type Token uint64

// Config holds configuration for the loop.
type Config struct {
	Logger *slog.Logger
}

// Loop is a single-threaded callback queue with one-shot timers.
type Loop struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	timers  map[Token]*time.Timer
	next    Token
}

// New creates a loop. Callbacks are not run until Run is called.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		timers: make(map[Token]*time.Timer),
	}
}

// Post queues fn to run on the loop goroutine. Safe for concurrent use.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Schedule runs fn on the loop after d. The returned token can be passed to
// Cancel; a cancelled timer never runs fn, even if it already expired and its
// callback is still queued.
func (l *Loop) Schedule(d time.Duration, fn func()) Token {
	l.mu.Lock()
	l.next++
	token := l.next
	l.timers[token] = time.AfterFunc(d, func() {
		l.Post(func() {
			if !l.take(token) {
				return
			}
			fn()
		})
	})
	l.mu.Unlock()
	return token
}

// Cancel stops a scheduled timer. It reports whether the timer was still pending.
func (l *Loop) Cancel(token Token) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.timers[token]
	if !ok {
		return false
	}
	t.Stop()
	delete(l.timers, token)
	return true
}

func (l *Loop) take(token Token) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.timers[token]; !ok {
		return false
	}
	delete(l.timers, token)
	return true
}

// Run dispatches callbacks until ctx is cancelled. Blocks.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Debug("event loop started")
	for {
		select {
		case <-ctx.Done():
			l.stopTimers()
			l.logger.Debug("event loop stopped")
			return
		case <-l.wake:
			l.drain()
		}
	}
}

// Call runs fn on the loop and waits for it to finish. It must not be called
// from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			l.dispatch(fn)
		}
	}
}

func (l *Loop) dispatch(fn func()) {
	// Recover from panics so one bad callback does not take the compositor down.
	defer func() {
		if err := recover(); err != nil {
			l.logger.Error("event loop callback panic recovered", "error", err)
		}
	}()
	fn()
}

func (l *Loop) stopTimers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for token, t := range l.timers {
		t.Stop()
		delete(l.timers, token)
	}
}
