// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the active client listing.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades browser connections and runs them as relay
// sessions sharing the relay's hub and username registry.
type WebSocketHandler struct {
	relay    *Relay
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler whose origin check follows the
// relay's AllowedOrigins.
func NewWebSocketHandler(relay *Relay) *WebSocketHandler {
	policy := newOriginPolicy(relay.Config().AllowedOrigins)
	return &WebSocketHandler{
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
	}
}

// ServeHTTP validates that the request uses the GET method, upgrades the
// HTTP connection to WebSocket and runs the session until it ends.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.relay.ServeConn(newWSConn(conn, r.RemoteAddr, h.relay.Config()))
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the relay is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat relay is running!")
}

// ClientsResponse is the body served by the client listing endpoint.
type ClientsResponse struct {
	Count     int      `json:"count"`
	Usernames []string `json:"usernames"`
}

// ClientsHandler lists the usernames of active clients in sorted order.
func ClientsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := hub.Usernames()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ClientsResponse{Count: len(names), Usernames: names}); err != nil {
			log.Printf("Error writing clients response: %v", err)
		}
	}
}
