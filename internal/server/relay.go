package server

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/username"
)

// ErrRelayClosed is returned by Serve and ListenAndServe after Shutdown.
var ErrRelayClosed = errors.New("server: relay closed")

const maxAcceptDelay = time.Second

// Relay accepts connections and runs one client session per connection.
type Relay struct {
	cfg   Config
	hub   *Hub
	names *username.Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	closed    bool
}

// NewRelay creates a relay sharing hub and names with any other entry
// point, such as the WebSocket gateway.
func NewRelay(cfg Config, hub *Hub, names *username.Registry) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		cfg:       cfg.Sanitize(),
		hub:       hub,
		names:     names,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
	}
}

// Hub returns the broadcast hub used by the relay.
func (r *Relay) Hub() *Hub {
	return r.hub
}

// Config returns the sanitized configuration of the relay.
func (r *Relay) Config() Config {
	return r.cfg
}

// ListenAndServe listens on the configured TCP address and serves it.
func (r *Relay) ListenAndServe() error {
	listener, err := net.Listen("tcp", r.cfg.Addr())
	if err != nil {
		return err
	}
	return r.Serve(listener)
}

// Serve accepts connections on listener until Shutdown is called or the
// listener fails permanently. Each connection is handled in its own
// goroutine; a failing session never stops the accept loop.
func (r *Relay) Serve(listener net.Listener) error {
	if !r.track(listener) {
		_ = listener.Close()
		return ErrRelayClosed
	}
	defer r.untrack(listener)

	log.Printf("Relay listening on %s", listener.Addr())

	var tempDelay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if r.ctx.Err() != nil {
				return ErrRelayClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > maxAcceptDelay {
				tempDelay = maxAcceptDelay
			}
			log.Printf("Accept error: %v; retrying in %v", err, tempDelay)
			select {
			case <-time.After(tempDelay):
			case <-r.ctx.Done():
				return ErrRelayClosed
			}
			continue
		}
		tempDelay = 0

		go r.ServeConn(newTCPConn(conn, r.cfg))
	}
}

// ServeConn runs a client session on an accepted connection and returns
// when the session ends.
func (r *Relay) ServeConn(conn Conn) {
	NewClient(conn, r.hub, r.names, r.cfg).Run(r.ctx)
}

func (r *Relay) track(listener net.Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.listeners[listener] = struct{}{}
	return true
}

func (r *Relay) untrack(listener net.Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, listener)
}

// Shutdown stops accepting connections, closes every session and waits up
// to timeout for the handlers to finish.
func (r *Relay) Shutdown(timeout time.Duration) error {
	log.Println("Shutting down relay...")

	r.mu.Lock()
	r.closed = true
	r.cancel()
	for listener := range r.listeners {
		if err := listener.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing listener %s: %v", listener.Addr(), err)
		}
	}
	r.mu.Unlock()

	return r.hub.Shutdown(timeout)
}
