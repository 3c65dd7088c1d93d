package relay

import (
	"context"
	"sync"
)

// LaneLock serialises turns per conversation key. Turns on the same key
// run one at a time; different keys proceed in parallel. Waiting for a
// lane honours context cancellation.
//
// A global mutex protects the lane map and is held only to look up or
// create a lane. Lanes are dropped once nobody holds or waits on them.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	sem  chan struct{}
	refs int
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{lanes: make(map[string]*lane)}
}

// Acquire blocks until the lane for key is free or ctx is done. On
// success the caller must call Release with the same key.
func (l *LaneLock) Acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{sem: make(chan struct{}, 1)}
		l.lanes[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	select {
	case ln.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, ln)
		return ctx.Err()
	}
}

// Release frees the lane for key.
func (l *LaneLock) Release(key string) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-ln.sem
	l.unref(key, ln)
}

// Busy reports whether a turn currently holds the lane for key.
func (l *LaneLock) Busy(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln, ok := l.lanes[key]
	return ok && len(ln.sem) > 0
}

func (l *LaneLock) unref(key string, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, key)
	}
}
