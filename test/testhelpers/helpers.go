// Package testhelpers provides common utilities and helper functions for testing the GoChat relay.
//
// This package contains reusable test utilities that are shared across unit and integration tests.
// It provides functions for starting a relay with its HTTP side, speaking the framed TCP protocol,
// making HTTP requests, and asserting response properties to reduce code duplication in test files.
package testhelpers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-relay/internal/frame"
	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/Tyrowin/gochat-relay/internal/username"
)

// Timeout bounds every blocking step of a test.
const Timeout = 2 * time.Second

// TestOrigin is the origin sent by WebSocket test clients.
const TestOrigin = "http://localhost:8080"

// Env is a running relay with its HTTP side served by an httptest server.
type Env struct {
	Relay   *server.Relay
	Hub     *server.Hub
	Names   *username.Registry
	TCPAddr string
	HTTP    *httptest.Server
}

// WSURL returns the WebSocket gateway URL.
func (e *Env) WSURL() string {
	return "ws" + strings.TrimPrefix(e.HTTP.URL, "http") + "/ws"
}

// StartEnv starts a relay on a loopback port and its routes on an httptest
// server. Customize may adjust the configuration before anything starts.
// Everything is shut down when the test ends.
func StartEnv(t *testing.T, customize func(cfg *server.Config)) *Env {
	t.Helper()

	cfg := server.NewConfig()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.WriteTimeout = Timeout
	cfg.AllowedOrigins = []string{TestOrigin}
	if customize != nil {
		customize(cfg)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	env := &Env{
		Hub:     server.NewHub(nil),
		Names:   username.NewRegistry(nil),
		TCPAddr: listener.Addr().String(),
	}
	env.Relay = server.NewRelay(*cfg, env.Hub, env.Names)

	served := make(chan error, 1)
	go func() { served <- env.Relay.Serve(listener) }()

	env.HTTP = CreateTestServer(server.SetupRoutes(env.Relay))

	t.Cleanup(func() {
		if err := env.Relay.Shutdown(Timeout); err != nil {
			t.Errorf("Relay shutdown failed: %v", err)
		}
		env.HTTP.Close()
		<-served
	})
	return env
}

// WaitFor polls cond until it holds or Timeout elapses.
func WaitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(Timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met in time")
}

// WaitForNameFree waits until name can be reserved again, which happens
// shortly after its holder disconnects.
func WaitForNameFree(t *testing.T, env *Env, name string) {
	t.Helper()
	WaitFor(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), Timeout)
		defer cancel()
		if env.Names.Reserve(ctx, name) != nil {
			return false
		}
		_ = env.Names.Release(ctx, name)
		return true
	})
}

// TCPClient speaks the length-prefixed frame protocol.
type TCPClient struct {
	t    *testing.T
	Conn net.Conn
}

// DialTCP connects a TCPClient to addr.
func DialTCP(t *testing.T, addr string) *TCPClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, Timeout)
	if err != nil {
		t.Fatalf("Failed to dial relay: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &TCPClient{t: t, Conn: conn}
}

// JoinTCP dials addr and completes the handshake as name.
func JoinTCP(t *testing.T, addr, name string) *TCPClient {
	t.Helper()
	c := DialTCP(t, addr)
	c.Send(name)
	c.Expect(server.AcceptedMessage)
	return c
}

// Send writes one frame.
func (c *TCPClient) Send(payload string) {
	c.t.Helper()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(Timeout))
	if err := frame.WriteFrame(c.Conn, []byte(payload)); err != nil {
		c.t.Fatalf("Failed to send %q: %v", payload, err)
	}
}

// Read reads one frame, waiting at most timeout.
func (c *TCPClient) Read(timeout time.Duration) ([]byte, error) {
	_ = c.Conn.SetReadDeadline(time.Now().Add(timeout))
	return frame.ReadFrame(c.Conn, server.DefaultMaxMessageSize)
}

// Expect reads one frame and fails the test unless it equals want.
func (c *TCPClient) Expect(want string) {
	c.t.Helper()
	got, err := c.Read(Timeout)
	if err != nil {
		c.t.Fatalf("Expected frame %q, got error: %v", want, err)
	}
	if string(got) != want {
		c.t.Fatalf("Expected frame %q, got %q", want, got)
	}
}

// ExpectMessage reads a relayed message: the sender name, then the body.
func (c *TCPClient) ExpectMessage(from, body string) {
	c.t.Helper()
	c.Expect(from)
	c.Expect(body)
}

// ExpectNothing fails the test if a frame arrives within timeout.
func (c *TCPClient) ExpectNothing(timeout time.Duration) {
	c.t.Helper()
	got, err := c.Read(timeout)
	if err == nil {
		c.t.Fatalf("Expected no frame, got %q", got)
	}
	if !errors.Is(err, frame.ErrWouldBlock) {
		c.t.Fatalf("Expected read to time out, got %v", err)
	}
}

// ExpectClosed fails the test unless the relay closes the connection.
func (c *TCPClient) ExpectClosed() {
	c.t.Helper()
	deadline := time.Now().Add(Timeout)
	for time.Now().Before(deadline) {
		_, err := c.Read(Timeout)
		if err == nil {
			continue
		}
		if errors.Is(err, frame.ErrWouldBlock) {
			break
		}
		return
	}
	c.t.Fatal("Expected connection to be closed by the relay")
}

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, expected) {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url sending origin, or no Origin header
// when origin is empty.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// JoinWebSocket connects to the gateway and completes the handshake as name.
func JoinWebSocket(t *testing.T, url, name string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := SendText(conn, name); err != nil {
		t.Fatalf("Failed to send username: %v", err)
	}
	ExpectText(t, conn, server.AcceptedMessage)
	return conn
}

// SendText sends one text message over the WebSocket connection.
func SendText(conn *websocket.Conn, text string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(Timeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// ExpectText reads one message and fails the test unless it equals want.
func ExpectText(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(Timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected message %q, got error: %v", want, err)
	}
	if string(data) != want {
		t.Fatalf("Expected message %q, got %q", want, data)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
