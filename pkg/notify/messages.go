// Package notify carries "new version published" notifications from the
// patch server to clients over a websocket.
package notify

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	TypeHello     MessageType = "hello"
	TypePublished MessageType = "published"
)

type Message struct {
	Type    MessageType `json:"type"`
	Version int         `json:"version"`
	Archive string      `json:"archive,omitempty"`
}

func ParseMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("missing type field")
	}
	return &m, nil
}
