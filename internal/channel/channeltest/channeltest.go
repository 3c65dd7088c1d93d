// Package channeltest provides test doubles for channel consumers.
package channeltest

import (
	"context"
	"sync"

	"github.com/flemzord/relayclaw/internal/channel"
	"github.com/flemzord/relayclaw/internal/core"
)

// Compile-time interface guards.
var (
	_ channel.Channel       = (*MockChannel)(nil)
	_ channel.TypingChannel = (*MockChannel)(nil)
)

// MockChannel records notifications and typing indicators.
type MockChannel struct {
	name string

	mu      sync.Mutex
	sent    []string
	typing  int
	binding channel.Binding

	// NotifyFunc, if set, is called instead of the default recording behavior.
	NotifyFunc func(ctx context.Context, text string) error
}

// NewMockChannel creates a MockChannel registered as "channel.<name>".
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

// ModuleInfo implements core.Module.
func (m *MockChannel) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID("channel." + m.name),
		New: func() core.Module { return NewMockChannel(m.name) },
	}
}

// Notify records text. If NotifyFunc is set, it delegates to it.
func (m *MockChannel) Notify(ctx context.Context, text string) error {
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return nil
}

// SendTyping implements channel.TypingChannel.
func (m *MockChannel) SendTyping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing++
	return nil
}

// Bind implements channel.Channel.
func (m *MockChannel) Bind(b channel.Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binding = b
}

// Sent returns a copy of the recorded notifications.
func (m *MockChannel) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// Typing returns the number of typing indicators sent.
func (m *MockChannel) Typing() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing
}

// Binding returns what Bind received.
func (m *MockChannel) Binding() channel.Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.binding
}
