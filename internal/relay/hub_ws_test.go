package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func dialRelay(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendEvent(t *testing.T, ws *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := ws.WriteJSON(Envelope{Event: event, Payload: raw}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readEvent reads frames until it sees the wanted event or times out.
func readEvent(t *testing.T, ws *websocket.Conn, want string) Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	ws.SetReadDeadline(deadline)
	for {
		var env Envelope
		if err := ws.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if env.Event == want {
			return env
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestRelayOverWebsocket(t *testing.T) {
	hub := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			hub.ServeWS(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	user := dialRelay(t, srv)
	sendEvent(t, user, EventJoin, JoinPayload{UserID: "user-1", Role: "user"})

	// Round-trip through the dispatch loop so the join is applied before
	// the admin connects.
	sendEvent(t, user, EventSendMessage, SendMessagePayload{
		ConversationID: "user-1", Message: "hello?", SenderID: "user-1", SenderName: "Alice",
	})
	readEvent(t, user, EventNewMessage)

	admin := dialRelay(t, srv)
	sendEvent(t, admin, EventJoin, JoinPayload{UserID: "admin", Role: "admin"})

	// The customer learns that support came online.
	env := readEvent(t, user, EventAdminStatus)
	var status AdminStatusPayload
	if err := json.Unmarshal(env.Payload, &status); err != nil {
		t.Fatalf("decode admin-status: %v", err)
	}
	if !status.Online {
		t.Fatal("admin-status should report online")
	}

	sendEvent(t, user, EventSendMessage, SendMessagePayload{
		ConversationID: "user-1",
		Message:        "my order never arrived",
		SenderID:       "user-1",
		SenderName:     "Alice",
	})

	// Sender's own connection receives the canonical echo.
	env = readEvent(t, user, EventNewMessage)
	var echo NewMessagePayload
	if err := json.Unmarshal(env.Payload, &echo); err != nil {
		t.Fatalf("decode new-message: %v", err)
	}
	if echo.Message != "my order never arrived" || echo.SenderID != "user-1" {
		t.Fatalf("unexpected echo payload: %+v", echo)
	}
	if echo.Timestamp.IsZero() {
		t.Fatal("echo should carry a server timestamp")
	}

	// Admin hears about the customer message without joining the room.
	env = readEvent(t, admin, EventNewUserMessage)
	var notify SendMessagePayload
	if err := json.Unmarshal(env.Payload, &notify); err != nil {
		t.Fatalf("decode new-user-message: %v", err)
	}
	if notify.ConversationID != "user-1" {
		t.Fatalf("notification for wrong conversation: %+v", notify)
	}

	// Customer disconnect surfaces as user-presence at the admin.
	user.Close()
	env = readEvent(t, admin, EventUserPresence)
	var presence UserPresencePayload
	if err := json.Unmarshal(env.Payload, &presence); err != nil {
		t.Fatalf("decode user-presence: %v", err)
	}
	if presence.UserID != "user-1" || presence.Online {
		t.Fatalf("unexpected presence payload: %+v", presence)
	}
}

func TestWebsocketOriginGate(t *testing.T) {
	hub := NewHub(NewMemoryRegistry(), nil, zerolog.Nop(), []string{"https://shop.example.com"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	if ws, _, err := websocket.DefaultDialer.Dial(wsURL, header); err == nil {
		ws.Close()
		t.Fatal("upgrade from a disallowed origin should fail")
	}

	header = http.Header{"Origin": []string{"https://shop.example.com"}}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("upgrade from the allowed origin failed: %v", err)
	}
	ws.Close()
}
