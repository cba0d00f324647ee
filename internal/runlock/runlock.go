// Package runlock provides the single-flight guard around queue runs.
package runlock

import (
	"context"
	"sync/atomic"
)

// Release frees a held guard. It is safe to call more than once.
type Release func()

// Guard admits at most one holder at a time. TryAcquire never blocks on a
// held guard: ok is false when another run holds it.
type Guard interface {
	TryAcquire(ctx context.Context) (release Release, ok bool, err error)
}

var _ Guard = (*Local)(nil)

// Local is an in-process guard backed by an atomic flag.
type Local struct {
	held atomic.Bool
}

// NewLocal returns an unheld Local guard.
func NewLocal() *Local {
	return &Local{}
}

// TryAcquire takes the guard if it is free.
func (l *Local) TryAcquire(_ context.Context) (Release, bool, error) {
	if !l.held.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return once(func() { l.held.Store(false) }), true, nil
}

// once wraps fn so that only the first of any number of concurrent calls
// runs it.
func once(fn func()) Release {
	var called atomic.Bool
	return func() {
		if called.CompareAndSwap(false, true) {
			fn()
		}
	}
}

// Held reports whether the guard is currently taken.
func (l *Local) Held() bool {
	return l.held.Load()
}
