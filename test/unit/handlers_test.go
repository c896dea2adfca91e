// Package unit contains unit tests for individual components of the GoChat relay.
//
// These tests focus on testing specific functions and methods in isolation,
// using mocks and stubs where necessary to avoid dependencies on external systems.
// Unit tests ensure that each component behaves correctly under various conditions.
package unit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/Tyrowin/gochat-relay/internal/username"
)

const healthBody = "GoChat relay is running!"

func newTestRelay() *server.Relay {
	return server.NewRelay(*server.NewConfig(), server.NewHub(nil), username.NewRegistry(nil))
}

// TestHealthHandlerUnit tests the health handler function in isolation.
// It verifies that the handler returns the expected status code, content type
// and response body.
func TestHealthHandlerUnit(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "/", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	server.HealthHandler(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("handler returned wrong content type: got %v", ct)
	}
	if rr.Body.String() != healthBody {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), healthBody)
	}
}

// TestClientsHandlerUnit tests the client listing on an empty hub.
// It verifies that the response is JSON with a zero count and an empty list.
func TestClientsHandlerUnit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/clients", http.NoBody)
	rr := httptest.NewRecorder()

	server.ClientsHandler(server.NewHub(nil)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("handler returned wrong content type: got %v", ct)
	}

	var body server.ClientsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body %q: %v", rr.Body.String(), err)
	}
	if body.Count != 0 || len(body.Usernames) != 0 {
		t.Errorf("Expected empty listing, got %+v", body)
	}
}

// TestSetupRoutes tests the route setup function.
// It verifies that each route answers the methods it supports and that other
// methods are refused with 405.
func TestSetupRoutes(t *testing.T) {
	router := server.SetupRoutes(newTestRelay())
	if router == nil {
		t.Fatal("SetupRoutes returned nil router")
	}

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"GET root", http.MethodGet, "/", http.StatusOK},
		{"HEAD root", http.MethodHead, "/", http.StatusOK},
		{"GET health", http.MethodGet, "/health", http.StatusOK},
		{"GET clients", http.MethodGet, "/clients", http.StatusOK},
		{"POST root", http.MethodPost, "/", http.StatusMethodNotAllowed},
		{"DELETE clients", http.MethodDelete, "/clients", http.StatusMethodNotAllowed},
		{"POST ws", http.MethodPost, "/ws", http.StatusMethodNotAllowed},
		{"PUT ws", http.MethodPut, "/ws", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("%s %s returned %d, want %d", tt.method, tt.path, rr.Code, tt.expectedStatus)
			}
		})
	}
}

// TestCreateServer tests the server creation function.
// It verifies that CreateServer returns an HTTP server with the correct
// configuration including address, handler, and timeout settings.
func TestCreateServer(t *testing.T) {
	addr := ":8080"
	router := server.SetupRoutes(newTestRelay())

	srv := server.CreateServer(addr, router)

	if srv.Addr != addr {
		t.Errorf("Expected server addr %s, got %s", addr, srv.Addr)
	}
	if srv.Handler != router {
		t.Error("Server handler not set correctly")
	}

	expectedReadTimeout := 15 * time.Second
	expectedWriteTimeout := 15 * time.Second
	expectedIdleTimeout := 60 * time.Second

	if srv.ReadTimeout != expectedReadTimeout {
		t.Errorf("Expected ReadTimeout %v, got %v", expectedReadTimeout, srv.ReadTimeout)
	}
	if srv.WriteTimeout != expectedWriteTimeout {
		t.Errorf("Expected WriteTimeout %v, got %v", expectedWriteTimeout, srv.WriteTimeout)
	}
	if srv.IdleTimeout != expectedIdleTimeout {
		t.Errorf("Expected IdleTimeout %v, got %v", expectedIdleTimeout, srv.IdleTimeout)
	}
}

// TestShutdownServer tests that an idle HTTP server shuts down cleanly.
func TestShutdownServer(t *testing.T) {
	srv := server.CreateServer("127.0.0.1:0", http.NotFoundHandler())
	done := make(chan error, 1)
	go func() { done <- server.StartServer(srv) }()

	time.Sleep(50 * time.Millisecond)
	if err := server.ShutdownServer(srv, time.Second); err != nil {
		t.Fatalf("ShutdownServer returned error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("StartServer returned %v after shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StartServer did not return after shutdown")
	}
}
