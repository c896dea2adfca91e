// Package presence announces clients entering and leaving the relay to
// external consumers.
package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of presence change.
type Type string

const (
	// Join - the client completed the handshake and receives broadcasts.
	Join Type = "join"
	// Leave - the client was removed from the relay.
	Leave Type = "leave"
)

// Event describes one presence change.
type Event struct {
	Type      Type      `json:"type"`
	Session   uuid.UUID `json:"session"`
	Username  string    `json:"username"`
	Remote    string    `json:"remote"`
	Transport string    `json:"transport"`
	Time      time.Time `json:"time"`
}

// Publisher delivers presence events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
