package channel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/flemzord/relayclaw/internal/relay"
)

// Dispatcher is the relay.Notifier handed to the scheduler. It forwards
// every notification to each registered transport, in registration order.
type Dispatcher struct {
	mu      sync.RWMutex
	targets []target
}

type target struct {
	name string
	n    relay.Notifier
}

var _ relay.Notifier = (*Dispatcher)(nil)

func NewDispatcher() *Dispatcher { return &Dispatcher{} }

// Register adds n under name. Names are unique.
func (d *Dispatcher) Register(name string, n relay.Notifier) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index(name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	d.targets = append(d.targets, target{name: name, n: n})
	return nil
}

func (d *Dispatcher) Get(name string) (relay.Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i := d.index(name); i >= 0 {
		return d.targets[i].n, true
	}
	return nil, false
}

// Channels lists the registered names in registration order.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.targets))
	for i, t := range d.targets {
		names[i] = t.name
	}
	return names
}

// Notify sends text everywhere. One transport failing does not keep the
// text from the others; every failure is reported.
func (d *Dispatcher) Notify(ctx context.Context, text string) error {
	d.mu.RLock()
	targets := slices.Clone(d.targets)
	d.mu.RUnlock()

	if len(targets) == 0 {
		return ErrNoChannel
	}
	var errs []error
	for _, t := range targets {
		if err := t.n.Notify(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", t.name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) index(name string) int {
	return slices.IndexFunc(d.targets, func(t target) bool { return t.name == name })
}
