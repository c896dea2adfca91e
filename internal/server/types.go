// Package server defines the transport abstraction, session states and
// utility helpers that are reused across client, hub and relay logic.
package server

import (
	"strings"
	"time"
)

// AcceptedMessage is sent to a client whose proposed username was reserved.
const AcceptedMessage = "Username assigned to you"

// Conn is one client transport carrying frames. Implementations exist for
// raw TCP with length-prefixed framing and for WebSocket.
type Conn interface {
	// ReadFrame returns the next payload. It returns io.EOF when the peer
	// closed the connection, frame.ErrWouldBlock when no data arrived in
	// time, and errors wrapping frame.ErrProtocol for malformed input.
	ReadFrame() ([]byte, error)
	// WriteFrame sends one payload.
	WriteFrame(payload []byte) error
	Close() error
	RemoteAddr() string
	Transport() string
}

// keepAliver is implemented by transports that need periodic pings.
// StartKeepAlive is called from the reading goroutine once the session is
// active; before that the peer may stay silent for as long as it likes.
type keepAliver interface {
	StartKeepAlive() error
	PingInterval() time.Duration
	Ping() error
}

// State is the lifecycle stage of a client session.
type State int

const (
	// StateHandshaking - waiting for an acceptable username.
	StateHandshaking State = iota
	// StateActive - registered with the hub and relaying messages.
	StateActive
	// StateClosed - deregistered, username released, connection closed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// delivery is one relayed chat message queued for a recipient: the sender
// name frame followed by the message frame.
type delivery struct {
	from string
	body []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "io: read/write on closed pipe") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
