// Package locks serialises mutations of a single paper.
package locks

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// context expired.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive locks keyed by name. The returned release
// function must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Memory is a process-wide lock: every key shares one mutex, so at most one
// mutation runs at a time.
type Memory struct {
	ch chan struct{}
}

// NewMemory returns an in-process Locker.
func NewMemory() *Memory {
	return &Memory{ch: make(chan struct{}, 1)}
}

func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	select {
	case m.ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrNotAcquired
	}
	var once sync.Once
	return func() { once.Do(func() { <-m.ch }) }, nil
}
