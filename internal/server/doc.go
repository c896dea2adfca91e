// Package server implements the chat relay: the TCP accept loop, per-client
// sessions with the username handshake, the broadcast hub, and the HTTP side
// with its WebSocket gateway.
//
// The implementation is organized into specialized files for configuration, hub
// management, clients, transports, routing, and HTTP handlers to keep the
// codebase maintainable and testable as the project grows.
package server
