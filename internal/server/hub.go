// Package server coordinates client registration, message broadcast, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/presence"
)

const publishTimeout = 2 * time.Second

// Hub keeps the table of active clients and fans messages out to them.
// A single RWMutex guards the table: registration and removal take the
// write lock, broadcasts iterate under the read lock.
//
// The hub also tracks every running session, including those still in the
// handshake, so Shutdown can close them all.
type Hub struct {
	mutex   sync.RWMutex
	clients map[*Client]string

	sessionsMu sync.Mutex
	sessions   map[*Client]struct{}
	closing    bool
	wg         sync.WaitGroup

	publisher presence.Publisher
}

// NewHub creates an empty Hub. A nil publisher disables presence events.
func NewHub(publisher presence.Publisher) *Hub {
	if publisher == nil {
		publisher = presence.Nop{}
	}
	return &Hub{
		clients:   make(map[*Client]string),
		sessions:  make(map[*Client]struct{}),
		publisher: publisher,
	}
}

// Register adds an active client to the broadcast table. It reports false,
// leaving the table untouched, when the client is not active.
func (h *Hub) Register(client *Client) bool {
	if client == nil {
		log.Printf("Received nil client registration; skipping")
		return false
	}

	h.mutex.Lock()
	if client.State() != StateActive {
		h.mutex.Unlock()
		return false
	}
	name := client.Username()
	h.clients[client] = name
	clientCount := len(h.clients)
	h.mutex.Unlock()

	log.Printf("Client %s registered from %s. Total clients: %d", name, client.addr, clientCount)
	h.publish(presence.Join, client, name)
	return true
}

// Deregister removes client from the broadcast table. It is a no-op for
// clients that are not registered.
func (h *Hub) Deregister(client *Client) bool {
	h.mutex.Lock()
	name, ok := h.clients[client]
	if !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	log.Printf("Client %s unregistered from %s. Total clients: %d", name, client.addr, clientCount)
	h.publish(presence.Leave, client, name)
	return true
}

// Broadcast queues message for every registered client except sender and
// returns how many recipients accepted it. A recipient that cannot keep up
// is disconnected rather than left with a gap in its stream; the others
// still receive the message.
func (h *Hub) Broadcast(sender *Client, message []byte) int {
	from := ""
	if sender != nil {
		from = sender.Username()
	}
	d := delivery{from: from, body: message}

	var slow []*Client
	delivered := 0

	h.mutex.RLock()
	for client, name := range h.clients {
		if client == sender {
			continue
		}
		switch err := client.enqueue(d); {
		case err == nil:
			delivered++
		case errors.Is(err, errSendQueueFull):
			slow = append(slow, client)
		default:
			log.Printf("Dropped message from %s for %s (%s): %v", from, name, client.addr, err)
		}
	}
	h.mutex.RUnlock()

	// Close takes the write lock through Deregister
	for _, client := range slow {
		log.Printf("Send queue full for %s (%s); disconnecting slow client", client.Username(), client.addr)
		client.Close()
	}
	return delivered
}

// Usernames returns the names of registered clients in sorted order.
func (h *Hub) Usernames() []string {
	h.mutex.RLock()
	names := make([]string, 0, len(h.clients))
	for _, name := range h.clients {
		names = append(names, name)
	}
	h.mutex.RUnlock()

	sort.Strings(names)
	return names
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) attach(client *Client) bool {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	if h.closing {
		return false
	}
	h.sessions[client] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) detach(client *Client) {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	if _, ok := h.sessions[client]; ok {
		delete(h.sessions, client)
		h.wg.Done()
	}
}

func (h *Hub) publish(eventType presence.Type, client *Client, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := h.publisher.Publish(ctx, presence.Event{
		Type:      eventType,
		Session:   client.id,
		Username:  name,
		Remote:    client.addr,
		Transport: client.conn.Transport(),
		Time:      time.Now().UTC(),
	})
	if err != nil {
		log.Printf("Error publishing %s event for %s: %v", eventType, name, err)
	}
}

// Shutdown closes every session and waits for their handlers to return.
// Sessions started afterwards are closed immediately.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Shutting down all client connections...")

	h.sessionsMu.Lock()
	h.closing = true
	sessions := make([]*Client, 0, len(h.sessions))
	for client := range h.sessions {
		sessions = append(sessions, client)
	}
	h.sessionsMu.Unlock()

	for _, client := range sessions {
		client.Close()
	}
	log.Printf("Closed %d client connections", len(sessions))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
