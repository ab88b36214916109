package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Hub accepts subscribers and fans messages out to them. A subscriber
// that falls behind is dropped.
type Hub struct {
	Logger *slog.Logger
	// OnCount, if set, is called with the subscriber count after every
	// change.
	OnCount func(n int)
	// OriginPatterns lists extra hosts whose browser pages may subscribe.
	// Requests without an Origin header and same-host origins are always
	// accepted.
	OriginPatterns []string

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	latest *Message
}

type subscriber struct {
	ch chan []byte
}

func (h *Hub) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish records m as the latest message and sends it to every
// subscriber.
func (h *Hub) Publish(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		h.logger().Error("marshal message", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &m
	for s := range h.subs {
		select {
		case s.ch <- data:
		default:
			h.logger().Warn("dropping slow subscriber")
			close(s.ch)
			delete(h.subs, s)
		}
	}
	h.countLocked()
}

func (h *Hub) add() (*subscriber, *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[*subscriber]struct{})
	}
	s := &subscriber{ch: make(chan []byte, 16)}
	h.subs[s] = struct{}{}
	h.countLocked()
	return s, h.latest
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		close(s.ch)
		delete(h.subs, s)
	}
	h.countLocked()
}

func (h *Hub) countLocked() {
	if h.OnCount != nil {
		h.OnCount(len(h.subs))
	}
}

// ServeHTTP upgrades the request and greets the subscriber with the
// latest known version before streaming published messages.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	s, latest := h.add()
	defer h.remove(s)

	ctx := conn.CloseRead(r.Context())

	hello := Message{Type: TypeHello}
	if latest != nil {
		hello.Version = latest.Version
		hello.Archive = latest.Archive
	}
	data, err := json.Marshal(hello)
	if err != nil {
		return
	}
	if err := write(ctx, conn, data); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-s.ch:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "too slow")
				return
			}
			if err := write(ctx, conn, data); err != nil {
				h.logger().Debug("subscriber write", "err", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
