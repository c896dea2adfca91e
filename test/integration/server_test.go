// Package integration contains integration tests for the GoChat relay.
//
// These tests verify that multiple components work together correctly by testing
// the complete system behavior with a real TCP listener, HTTP server, WebSocket
// connections, and end-to-end functionality. Integration tests ensure that the
// system works as expected when all components are assembled together.
package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/Tyrowin/gochat-relay/test/testhelpers"
)

// TestHealthEndpointIntegration tests the health endpoints with the actual route setup.
func TestHealthEndpointIntegration(t *testing.T) {
	env := testhelpers.StartEnv(t, nil)

	for _, path := range []string{"/", "/health"} {
		t.Run(path, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, http.MethodGet, env.HTTP.URL+path)
			defer func() { _ = resp.Body.Close() }()

			testhelpers.AssertStatusCode(t, resp, http.StatusOK)
			testhelpers.AssertContentType(t, resp, "text/plain")

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("Failed to read body: %v", err)
			}
			if string(body) != "GoChat relay is running!" {
				t.Errorf("Unexpected body %q", body)
			}
		})
	}
}

func fetchClients(t *testing.T, env *testhelpers.Env) server.ClientsResponse {
	t.Helper()
	resp := testhelpers.MakeRequest(t, http.MethodGet, env.HTTP.URL+"/clients")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "application/json")

	var body server.ClientsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode clients response: %v", err)
	}
	return body
}

// TestClientsEndpointIntegration tests that the client listing follows
// clients joining over both transports and leaving.
func TestClientsEndpointIntegration(t *testing.T) {
	env := testhelpers.StartEnv(t, nil)

	if got := fetchClients(t, env); got.Count != 0 {
		t.Fatalf("Expected no clients, got %+v", got)
	}

	bob := testhelpers.JoinTCP(t, env.TCPAddr, "bob")
	testhelpers.JoinWebSocket(t, env.WSURL(), "alice")
	testhelpers.WaitFor(t, func() bool { return env.Hub.Count() == 2 })

	got := fetchClients(t, env)
	if got.Count != 2 || len(got.Usernames) != 2 || got.Usernames[0] != "alice" || got.Usernames[1] != "bob" {
		t.Errorf("Expected [alice bob], got %+v", got)
	}

	_ = bob.Conn.Close()
	testhelpers.WaitFor(t, func() bool { return env.Hub.Count() == 1 })

	got = fetchClients(t, env)
	if got.Count != 1 || got.Usernames[0] != "alice" {
		t.Errorf("Expected [alice], got %+v", got)
	}
}

// TestRelayTCPIntegration walks through the protocol over real sockets:
// rejections, retries, a relayed message and the name becoming free again.
func TestRelayTCPIntegration(t *testing.T) {
	env := testhelpers.StartEnv(t, nil)

	a := testhelpers.DialTCP(t, env.TCPAddr)
	a.Send("x")
	a.Expect("Username must be between 2 and 32 characters long")
	a.Send("al:ce")
	a.Expect("Username must not contain any of these characters: @ # : ` ' \"")
	a.Send("alice")
	a.Expect(server.AcceptedMessage)

	b := testhelpers.DialTCP(t, env.TCPAddr)
	b.Send("alice")
	b.Expect("Username already taken - please pick another")
	b.Send("bob")
	b.Expect(server.AcceptedMessage)
	testhelpers.WaitFor(t, func() bool { return env.Hub.Count() == 2 })

	a.Send("hello")
	b.ExpectMessage("alice", "hello")
	a.ExpectNothing(100 * time.Millisecond)

	_ = a.Conn.Close()
	testhelpers.WaitFor(t, func() bool { return env.Hub.Count() == 1 })
	testhelpers.WaitForNameFree(t, env, "alice")

	again := testhelpers.DialTCP(t, env.TCPAddr)
	again.Send("alice")
	again.Expect(server.AcceptedMessage)
}
