package sync

import (
	"context"
	"sync"
)

const defaultLimiterSlots = 4

// Limiter bounds how many catalog mutations run against one client type at
// a time, so a driver with a small connection pool is never exhausted by a
// burst of relation materializations.
type Limiter struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	sizes map[string]int
}

// NewLimiter builds a limiter with per-client slot counts. Clients without
// an entry get the default.
func NewLimiter(sizes map[string]int) *Limiter {
	return &Limiter{
		slots: make(map[string]chan struct{}),
		sizes: sizes,
	}
}

// Do runs fn once a slot for the client is free. It gives up when the
// context is cancelled first.
func (l *Limiter) Do(ctx context.Context, client string, fn func() error) error {
	sem := l.sem(client)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sem }()
	return fn()
}

func (l *Limiter) sem(client string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sem, ok := l.slots[client]; ok {
		return sem
	}
	size := l.sizes[client]
	if size <= 0 {
		size = defaultLimiterSlots
	}
	sem := make(chan struct{}, size)
	l.slots[client] = sem
	return sem
}
