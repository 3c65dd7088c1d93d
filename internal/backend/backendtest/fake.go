// Package backendtest provides test doubles for the backend package.
package backendtest

import (
	"context"
	"sync"

	"github.com/flemzord/relayclaw/internal/backend"
)

// Fake is a scripted backend.Invoker. Each call consumes the next queued
// result; once the queue is empty Handler is used, and without a Handler
// an empty reply is returned.
type Fake struct {
	Handler func(ctx context.Context, req backend.Request) (backend.Response, error)

	mu          sync.Mutex
	queue       []result
	requests    []backend.Request
	inFlight    int
	maxInFlight int
}

type result struct {
	resp backend.Response
	err  error
}

// Compile-time interface check.
var _ backend.Invoker = (*Fake)(nil)

// Reply returns a Fake that answers every call with text.
func Reply(text string) *Fake {
	return &Fake{Handler: func(context.Context, backend.Request) (backend.Response, error) {
		return backend.Response{Text: text}, nil
	}}
}

// Push queues a successful reply.
func (f *Fake) Push(text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, result{resp: backend.Response{Text: text}})
	return f
}

// PushError queues a failure.
func (f *Fake) PushError(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, result{err: err})
	return f
}

// Invoke implements backend.Invoker.
func (f *Fake) Invoke(ctx context.Context, req backend.Request) (backend.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	var next *result
	if len(f.queue) > 0 {
		next = &f.queue[0]
		f.queue = f.queue[1:]
	}
	handler := f.Handler
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	switch {
	case next != nil:
		return next.resp, next.err
	case handler != nil:
		return handler(ctx, req)
	default:
		return backend.Response{}, nil
	}
}

// Requests returns every request received so far.
func (f *Fake) Requests() []backend.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Calls returns the number of Invoke calls.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// MaxInFlight returns the highest number of concurrent Invoke calls seen.
func (f *Fake) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}
