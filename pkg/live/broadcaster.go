package live

import (
	"context"
	"errors"
	"time"

	"github.com/rcookie777/pizza-api/pkg/index"
)

// Message is the envelope sent to WebSocket clients
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// MessageTypeIndex carries a live index payload
const MessageTypeIndex = "pizza_index"

// Producer builds the payload pushed to clients
type Producer func(ctx context.Context) (interface{}, error)

// Broadcaster pushes the current index to the hub
type Broadcaster struct {
	hub     *Hub
	produce Producer
	timeout time.Duration
}

// NewBroadcaster creates a broadcaster. Each push runs under timeout.
func NewBroadcaster(hub *Hub, produce Producer, timeout time.Duration) *Broadcaster {
	return &Broadcaster{hub: hub, produce: produce, timeout: timeout}
}

// Message builds one index message without sending it
func (b *Broadcaster) Message(ctx context.Context) (interface{}, error) {
	data, err := b.produce(ctx)
	if err != nil {
		return nil, err
	}
	return Message{Type: MessageTypeIndex, Timestamp: time.Now().UTC(), Data: data}, nil
}

// Push sends the current index to all clients. It does nothing when no
// client is connected or no establishment has reported yet.
func (b *Broadcaster) Push(ctx context.Context) error {
	if !b.hub.HasClients() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	msg, err := b.Message(ctx)
	if errors.Is(err, index.ErrNoDataAvailable) {
		return nil
	}
	if err != nil {
		return err
	}
	return b.hub.Broadcast(msg)
}
