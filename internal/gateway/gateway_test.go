// Package gateway_test exercises the websocket transport end to end: real
// HTTP upgrades, real frames, and the relay core behind them.
package gateway_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/relayhub/chatrelay/internal/config"
	"github.com/relayhub/chatrelay/internal/gateway"
	"github.com/relayhub/chatrelay/internal/relay"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Port:            "0",
		Env:             "test",
		AllowedOrigins:  []string{"*"},
		MaxMessageSize:  512,
		RateLimitBurst:  100,
		RateLimitRefill: time.Second,
		SendBufferSize:  256,
		ShutdownTimeout: time.Second,
	}
	router := relay.NewRouter(zerolog.Nop(), false)
	gw := gateway.New(router, cfg, zerolog.Nop())
	go gw.Run()

	srv := httptest.NewServer(gateway.Routes(gw, zerolog.Nop()))
	t.Cleanup(func() {
		srv.Close()
		_ = gw.Shutdown(time.Second)
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, ev relay.Inbound) {
	t.Helper()

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

// waitForEvent reads frames until one of the wanted type arrives, skipping
// interleaved snapshots and presence events.
func waitForEvent(t *testing.T, conn *websocket.Conn, want relay.OutboundType) relay.Outbound {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("set read deadline: %v", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var ev relay.Outbound
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("invalid frame %q: %v", data, err)
		}
		if ev.Type == want {
			return ev
		}
	}
}

func joinAs(t *testing.T, conn *websocket.Conn, name string) {
	t.Helper()
	sendEvent(t, conn, relay.Inbound{Type: relay.InJoin, Name: name})
	waitForEvent(t, conn, relay.OutJoined)
}

// TestHealthEndpoint verifies the plain HTTP health check.
func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "running") {
		t.Errorf("unexpected body: %s", body)
	}
}

// TestMetricsEndpoint verifies that Prometheus metrics are exposed.
func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "chatrelay_") {
		t.Error("metrics output should contain chatrelay collectors")
	}
}

// TestJoinHandshakeOverWire verifies the full join flow: joined confirmation
// followed by client and group snapshots.
func TestJoinHandshakeOverWire(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	sendEvent(t, conn, relay.Inbound{Type: relay.InJoin, Name: "alice"})

	waitForEvent(t, conn, relay.OutJoined)
	list := waitForEvent(t, conn, relay.OutClientList)
	if len(list.Clients) != 1 || list.Clients[0] != "alice" {
		t.Errorf("client_list should be [alice], got %v", list.Clients)
	}
}

// TestDuplicateNameOverWire verifies that a taken name yields name_taken and
// the connection stays open for a retry.
func TestDuplicateNameOverWire(t *testing.T) {
	srv := newTestServer(t)

	first := dial(t, srv)
	joinAs(t, first, "alice")

	second := dial(t, srv)
	sendEvent(t, second, relay.Inbound{Type: relay.InJoin, Name: "alice"})
	waitForEvent(t, second, relay.OutNameTaken)

	// Retry with a free name on the same connection.
	sendEvent(t, second, relay.Inbound{Type: relay.InJoin, Name: "bob"})
	waitForEvent(t, second, relay.OutJoined)
}

// TestBroadcastBetweenClients verifies fan-out across two real connections,
// including the sender's "You" echo.
func TestBroadcastBetweenClients(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv)
	joinAs(t, alice, "alice")
	bob := dial(t, srv)
	joinAs(t, bob, "bob")

	sendEvent(t, alice, relay.Inbound{Type: relay.InBroadcast, Message: "hello everyone"})

	got := waitForEvent(t, bob, relay.OutBroadcastMessage)
	if got.From != "alice" || got.Message != "hello everyone" {
		t.Errorf("bob should receive alice's broadcast, got %+v", got)
	}
	echo := waitForEvent(t, alice, relay.OutBroadcastMessage)
	if echo.From != "You" || echo.Message != "hello everyone" {
		t.Errorf("alice's echo should come from \"You\", got %+v", echo)
	}
}

// TestPrivateMessageOverWire verifies targeted delivery between connections.
func TestPrivateMessageOverWire(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv)
	joinAs(t, alice, "alice")
	bob := dial(t, srv)
	joinAs(t, bob, "bob")

	sendEvent(t, alice, relay.Inbound{Type: relay.InPrivateMessage, To: "bob", Message: "psst"})

	msg := waitForEvent(t, bob, relay.OutPrivateMessage)
	if msg.From != "alice" || msg.Message != "psst" {
		t.Errorf("unexpected private message: %+v", msg)
	}
	sent := waitForEvent(t, alice, relay.OutPrivateMessageSent)
	if sent.To != "bob" {
		t.Errorf("unexpected confirmation: %+v", sent)
	}
}

// TestUnknownCommandOverWire verifies that an unrecognized frame type is
// answered with an error event instead of dropping the connection.
func TestUnknownCommandOverWire(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"make_coffee"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ev := waitForEvent(t, conn, relay.OutError)
	if ev.Error != "Unknown command" {
		t.Errorf("expected Unknown command error, got %+v", ev)
	}

	// The connection is still usable.
	sendEvent(t, conn, relay.Inbound{Type: relay.InJoin, Name: "alice"})
	waitForEvent(t, conn, relay.OutJoined)
}

// TestDisconnectBroadcastsPresence verifies that closing one connection
// produces user_left and refreshed snapshots for the survivors.
func TestDisconnectBroadcastsPresence(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv)
	joinAs(t, alice, "alice")
	bob := dial(t, srv)
	joinAs(t, bob, "bob")

	if err := bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	_ = bob.Close()

	left := waitForEvent(t, alice, relay.OutUserLeft)
	if left.Name != "bob" {
		t.Errorf("expected user_left for bob, got %+v", left)
	}
	list := waitForEvent(t, alice, relay.OutClientList)
	if len(list.Clients) != 1 || list.Clients[0] != "alice" {
		t.Errorf("client_list should be [alice], got %v", list.Clients)
	}
}
