package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"callpipe/internal/logging"
	"callpipe/internal/queue"
	"callpipe/internal/workflow"
)

const (
	hubSendBuffer   = 64
	hubWriteTimeout = 5 * time.Second
)

// Hub fans workflow events out to websocket subscribers. It implements
// workflow.Observer; a subscriber whose buffer fills is disconnected rather
// than slowing the manager down.
type Hub struct {
	logger   *zap.Logger
	snapshot func() []queue.Task

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	send   chan []byte
	remote string
}

// NewHub creates a hub. When snapshot is non-nil, each new subscriber first
// receives a task.updated message for every task it returns.
func NewHub(logger *zap.Logger, snapshot func() []queue.Task) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:   logging.NewComponentLogger(logger, "event-hub"),
		snapshot: snapshot,
		clients:  make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects, the hub closes, or the subscriber falls behind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Server read and write timeouts would otherwise cut long-lived streams.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := &subscriber{send: make(chan []byte, hubSendBuffer), remote: r.RemoteAddr}
	if !h.add(sub) {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.remove(sub)
	h.logger.Debug("event subscriber connected", zap.String("remote", sub.remote))

	ctx := conn.CloseRead(r.Context())
	if h.snapshot != nil {
		for _, task := range h.snapshot() {
			data, err := encodeMessage(EventTypeTaskUpdated, FromTask(task))
			if err != nil {
				continue
			}
			if err := write(ctx, conn, data); err != nil {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.send:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow or hub closed")
				return
			}
			if err := write(ctx, conn, data); err != nil {
				h.logger.Debug("websocket write failed", zap.String("remote", sub.remote), zap.Error(err))
				return
			}
		}
	}
}

// Observe implements workflow.Observer.
func (h *Hub) Observe(ev workflow.Event) {
	var (
		data []byte
		err  error
	)
	switch ev.Kind {
	case workflow.EventTaskUpdated:
		data, err = encodeMessage(EventTypeTaskUpdated, FromTask(ev.Task))
	case workflow.EventTaskRemoved:
		data, err = encodeMessage(EventTypeTaskRemoved, FromTask(ev.Task))
	case workflow.EventBatchFinished:
		data, err = encodeMessage(EventTypeBatchFinished, BatchFinished{BatchID: ev.BatchID, Summary: FromSummary(ev.Summary)})
	default:
		return
	}
	if err != nil {
		h.logger.Warn("event encode failed", zap.String("event", string(ev.Kind)), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.clients {
		select {
		case sub.send <- data:
		default:
			logging.WarnWithContext(h.logger, "dropping slow event subscriber", "subscriber_dropped",
				zap.String(logging.FieldErrorHint, "reconnect to resume the event stream"),
				zap.String(logging.FieldImpact, "subscriber misses updates until it reconnects"),
				zap.String("remote", sub.remote),
			)
			delete(h.clients, sub)
			close(sub.send)
		}
	}
}

// Subscribers reports the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.clients {
		delete(h.clients, sub)
		close(sub.send)
	}
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[sub] = struct{}{}
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub]; ok {
		delete(h.clients, sub)
		close(sub.send)
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, hubWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func encodeMessage(kind string, payload any) ([]byte, error) {
	return json.Marshal(EventMessage{Type: kind, Payload: payload})
}
