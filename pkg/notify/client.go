package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/coder/websocket"
)

type Subscription struct {
	conn *websocket.Conn
}

// Subscribe connects to the events endpoint at uri. http and https
// schemes are accepted and mapped to ws and wss.
func Subscribe(
	ctx context.Context, uri string,
) (*Subscription, error) {
	conn, _, err := websocket.Dial(ctx, HTTPToWS(uri), nil)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", uri, err)
	}
	conn.SetReadLimit(64 << 10)
	return &Subscription{conn: conn}, nil
}

// Next blocks until the server sends a message or ctx ends.
func (s *Subscription) Next(ctx context.Context) (*Message, error) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageText {
			continue
		}
		return ParseMessage(data)
	}
}

func (s *Subscription) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

func HTTPToWS(u string) string {
	if rest, ok := strings.CutPrefix(u, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(u, "http://"); ok {
		return "ws://" + rest
	}
	return u
}
