// Package server manages individual relay clients, handling the username
// handshake, read loop and write pump, rate limiting, and lifecycle control
// for each connection.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/gochat-relay/internal/frame"
	"github.com/Tyrowin/gochat-relay/internal/username"
)

const releaseTimeout = 5 * time.Second

var (
	errIdleTimeout   = errors.New("client idle timeout")
	errClientClosed  = errors.New("client closed")
	errSendQueueFull = errors.New("send queue full")
)

// Client represents one relay session. It owns its connection and moves
// through Handshaking, Active and Closed exactly once.
type Client struct {
	id    uuid.UUID
	conn  Conn
	hub   *Hub
	names *username.Registry
	addr  string

	mu       sync.Mutex
	state    State
	username string

	send      chan delivery
	done      chan struct{}
	closeOnce sync.Once

	rateLimiter *rateLimiter
	rateLimit   RateLimitConfig
	idleTimeout time.Duration
	lastRead    time.Time
}

// NewClient creates a session for conn. The session starts in the
// Handshaking state; call Run to drive it.
func NewClient(conn Conn, hub *Hub, names *username.Registry, cfg Config) *Client {
	cfg = cfg.Sanitize()
	return &Client{
		id:          uuid.New(),
		conn:        conn,
		hub:         hub,
		names:       names,
		addr:        conn.RemoteAddr(),
		state:       StateHandshaking,
		send:        make(chan delivery, cfg.SendBufferSize),
		done:        make(chan struct{}),
		rateLimiter: newRateLimiter(cfg.RateLimit),
		rateLimit:   cfg.RateLimit,
		idleTimeout: cfg.IdleTimeout,
		lastRead:    time.Now(),
	}
}

// ID returns the session identifier.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Addr returns the remote address of the peer.
func (c *Client) Addr() string {
	return c.addr
}

// Username returns the assigned username, or "" before the handshake succeeds.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// State returns the current lifecycle stage.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the session until the peer disconnects, a read fails or ctx is
// cancelled. It never panics; the connection is closed and the username
// released before Run returns.
func (c *Client) Run(ctx context.Context) {
	if !c.hub.attach(c) {
		c.Close()
		return
	}
	defer c.hub.detach(c)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in session %s (%s): %v", c.id, c.addr, r)
		}
		c.Close()
	}()

	log.Printf("Session %s opened for %s over %s", c.id, c.addr, c.conn.Transport())

	if !c.handshake(ctx) {
		return
	}
	if !c.activate() {
		return
	}
	if ka, ok := c.conn.(keepAliver); ok {
		if err := ka.StartKeepAlive(); err != nil {
			log.Printf("Error starting keep-alive for %s: %v", c.addr, err)
			return
		}
	}

	go c.writePump()

	if !c.hub.Register(c) {
		return
	}

	c.readLoop(ctx)
}

// handshake reads proposed usernames until one is reserved. Rejected names
// are answered with the reason and the client may try again.
func (c *Client) handshake(ctx context.Context) bool {
	for {
		payload, err := c.readFrame(ctx)
		if err != nil {
			c.handleReadError(err)
			return false
		}

		name := string(payload)
		err = c.names.Reserve(ctx, name)

		var validationErr *username.ValidationError
		switch {
		case err == nil:
		case errors.As(err, &validationErr):
			log.Printf("Rejected username %q from %s: %s", name, c.addr, validationErr)
			if err := c.conn.WriteFrame([]byte(validationErr.Error())); err != nil {
				log.Printf("Error writing rejection to %s: %v", c.addr, err)
				return false
			}
			continue
		default:
			log.Printf("Username registry failure for %s: %v", c.addr, err)
			return false
		}

		if !c.assign(name) {
			return false
		}

		if err := c.conn.WriteFrame([]byte(AcceptedMessage)); err != nil {
			log.Printf("Error writing acceptance to %s: %v", c.addr, err)
			return false
		}
		log.Printf("Accepted new connection from %s, name: %s", c.addr, name)
		return true
	}
}

// assign records a reserved name. If the session was closed concurrently
// the name is released at once so it does not leak.
func (c *Client) assign(name string) bool {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		c.release(name)
		return false
	}
	c.username = name
	c.mu.Unlock()
	return true
}

func (c *Client) activate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateHandshaking {
		return false
	}
	c.state = StateActive
	return true
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		payload, err := c.readFrame(ctx)
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		recipients := c.hub.Broadcast(c, payload)
		log.Printf("Received message from %s (%s): %d bytes relayed to %d clients",
			c.Username(), c.addr, len(payload), recipients)
	}
}

// readFrame waits for the next frame, retrying while the transport reports
// that no data is available yet.
func (c *Client) readFrame(ctx context.Context) ([]byte, error) {
	for {
		payload, err := c.conn.ReadFrame()
		if err == nil {
			c.lastRead = time.Now()
			return payload, nil
		}
		if !errors.Is(err, frame.ErrWouldBlock) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if c.idleTimeout > 0 && time.Since(c.lastRead) >= c.idleTimeout {
			return nil, errIdleTimeout
		}
	}
}

// handleReadError logs why the session's read side ended.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		log.Printf("Closed connection from: %s (%s)", c.describe(), c.addr)
	case errors.Is(err, frame.ErrProtocol):
		log.Printf("Protocol error from %s (%s): %v", c.describe(), c.addr, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Printf("Session %s for %s stopped by server shutdown", c.id, c.addr)
	case errors.Is(err, errIdleTimeout):
		log.Printf("Client %s (%s) idle for %s; disconnecting", c.describe(), c.addr, c.idleTimeout)
	case isExpectedCloseError(err):
		log.Printf("Client %s (%s) connection closed: %v", c.describe(), c.addr, err)
	default:
		log.Printf("Read error from %s (%s): %v", c.describe(), c.addr, err)
	}
}

func (c *Client) describe() string {
	if name := c.Username(); name != "" {
		return name
	}
	return "session " + c.id.String()
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// enqueue queues d for the write pump without blocking.
func (c *Client) enqueue(d delivery) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- d:
		return nil
	default:
		return errSendQueueFull
	}
}

// writePump is the only writer once the session is active, which keeps the
// two frames of every delivery adjacent on the wire.
func (c *Client) writePump() {
	defer c.Close()

	var (
		pinger keepAliver
		tick   <-chan time.Time
	)
	if ka, ok := c.conn.(keepAliver); ok {
		ticker := time.NewTicker(ka.PingInterval())
		defer ticker.Stop()
		pinger, tick = ka, ticker.C
	}

	for {
		select {
		case d := <-c.send:
			if !c.deliver(d) {
				return
			}
		case <-tick:
			if err := pinger.Ping(); err != nil {
				log.Printf("Error writing ping message to %s: %v", c.addr, err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) deliver(d delivery) bool {
	if err := c.conn.WriteFrame([]byte(d.from)); err != nil {
		log.Printf("Error writing sender name to %s (%s): %v", c.describe(), c.addr, err)
		return false
	}
	if err := c.conn.WriteFrame(d.body); err != nil {
		log.Printf("Error writing message to %s (%s): %v", c.describe(), c.addr, err)
		return false
	}
	return true
}

// Close deregisters the session, releases its username and closes the
// connection. Calling Close more than once is a no-op.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		name := c.username
		c.mu.Unlock()

		close(c.done)

		c.hub.Deregister(c)
		if name != "" {
			c.release(name)
		}

		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection for %s: %v", c.addr, err)
		}
	})
}

func (c *Client) release(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := c.names.Release(ctx, name); err != nil {
		log.Printf("Error releasing username %q for %s: %v", name, c.addr, err)
	}
}
