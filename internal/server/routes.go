// Package server wires HTTP handlers into a gorilla/mux router for the
// relay's HTTP side via routing helpers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns a router with all HTTP routes of the
// relay: health checks, the client listing and the WebSocket gateway.
func SetupRoutes(relay *Relay) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", HealthHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/health", HealthHandler).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/clients", ClientsHandler(relay.Hub())).Methods(http.MethodGet)
	router.Handle("/ws", NewWebSocketHandler(relay)).Methods(http.MethodGet)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	return router
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Method "+r.Method+" not allowed.", http.StatusMethodNotAllowed)
}
