package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/relayclaw/internal/directive"
	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/security"
)

const (
	subscriberBuffer  = 32
	eventWriteTimeout = 5 * time.Second
)

// Event is one message on /ws/events. Prompt and reply text are left out.
type Event struct {
	Type       string           `json:"type"`
	Source     relay.Source     `json:"source"`
	JobID      int              `json:"job_id,omitempty"`
	Suppressed bool             `json:"suppressed,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMS int64            `json:"duration_ms"`
	Directives []directive.Kind `json:"directives,omitempty"`
	Failed     []directive.Kind `json:"failed_directives,omitempty"`
	// Security and Origin are set on "security" events only.
	Security security.EventType `json:"security,omitempty"`
	Origin   string             `json:"origin,omitempty"`
	At       time.Time          `json:"at"`
}

// EventHub fans turn events out to websocket subscribers. A subscriber
// that falls behind loses events rather than slowing turns down.
type EventHub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool
}

// NewEventHub creates an empty hub.
func NewEventHub(logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{logger: logger, subs: make(map[chan []byte]struct{})}
}

var _ relay.Observer = (*EventHub)(nil)

// ObserveTurn implements relay.Observer.
func (h *EventHub) ObserveTurn(_ context.Context, rec relay.TurnRecord) {
	h.Publish(Event{
		Type:       "turn",
		Source:     rec.Source,
		JobID:      rec.JobID,
		Suppressed: rec.Suppressed,
		Error:      rec.Err,
		DurationMS: rec.Duration.Milliseconds(),
		Directives: rec.Directives,
		Failed:     rec.FailedDirectives,
		At:         rec.StartedAt,
	})
}

// ObserveAudit publishes the type and origin of an audit event. Subjects
// and details stay in the audit log.
func (h *EventHub) ObserveAudit(e security.AuditEvent) {
	h.Publish(Event{Type: "security", Security: e.Type, Origin: e.Source, At: e.Timestamp})
}

// Publish sends ev to every subscriber without blocking.
func (h *EventHub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("gateway: encode event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
			h.logger.Warn("gateway: event dropped for slow subscriber")
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}

func (h *EventHub) subscribe() (chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan []byte, subscriberBuffer)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *EventHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// ServeHTTP upgrades the request and streams events until either side
// goes away. Client messages are ignored.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("gateway: websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	ch, ok := h.subscribe()
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unsubscribe(ch)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case data, open := <-ch:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
