package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/service"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.sessions == nil {
		t.Error("Hub sessions map is nil")
	}
	if hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Error("Hub channels not initialized")
	}
}

func TestHubRegisterClient(t *testing.T) {
	hub := NewHub()
	client := &Client{hub: hub, sessionID: "test-session", send: make(chan []byte, 256)}

	hub.registerClient(client)

	if !hub.sessions["test-session"][client] {
		t.Error("Client was not registered in session")
	}
	if len(hub.sessions["test-session"]) != 1 {
		t.Errorf("Expected 1 client in session, got %d", len(hub.sessions["test-session"]))
	}
}

func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub()
	client := &Client{hub: hub, sessionID: "test-session", send: make(chan []byte, 256)}

	hub.registerClient(client)
	hub.unregisterClient(client)

	if _, exists := hub.sessions["test-session"]; exists {
		t.Error("Session should have been cleaned up after last client unregistered")
	}
	if _, ok := <-client.send; ok {
		t.Error("Expected send channel to be closed")
	}

	// second unregister is a no-op
	hub.unregisterClient(client)
}

func TestHubMultipleClientsInSession(t *testing.T) {
	hub := NewHub()
	sessionID := "multi-client-session"

	client1 := &Client{hub: hub, sessionID: sessionID, send: make(chan []byte, 256)}
	client2 := &Client{hub: hub, sessionID: sessionID, send: make(chan []byte, 256)}

	hub.registerClient(client1)
	hub.registerClient(client2)
	if len(hub.sessions[sessionID]) != 2 {
		t.Errorf("Expected 2 clients in session, got %d", len(hub.sessions[sessionID]))
	}

	hub.unregisterClient(client1)
	if !hub.sessions[sessionID][client2] || len(hub.sessions[sessionID]) != 1 {
		t.Error("client2 should remain registered alone")
	}
}

func TestHubBroadcastMessage_OnlyTargetSession(t *testing.T) {
	hub := NewHub()
	mine := &Client{hub: hub, sessionID: "ab12", send: make(chan []byte, 1)}
	other := &Client{hub: hub, sessionID: "cd34", send: make(chan []byte, 1)}
	hub.registerClient(mine)
	hub.registerClient(other)

	hub.broadcastMessage(&Message{
		SessionID: "ab12",
		Event:     EventStateUpdate,
		GameState: &service.GameView{SessionID: "ab12", Player: engine.Position{X: 3, Y: 4}, MoveCount: 2},
	})

	select {
	case data := <-mine.send:
		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if message.Event != EventStateUpdate || message.GameState.Player.X != 3 || message.GameState.MoveCount != 2 {
			t.Errorf("Unexpected message %+v", message)
		}
	default:
		t.Fatal("No message for the target session")
	}

	select {
	case <-other.send:
		t.Error("Other session must not receive the update")
	default:
	}
}

func TestHubBroadcastMessage_DropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := &Client{hub: hub, sessionID: "slow", send: make(chan []byte, 1)}
	hub.registerClient(slow)

	hub.broadcastMessage(&Message{SessionID: "slow", Event: "a"})
	hub.broadcastMessage(&Message{SessionID: "slow", Event: "b"})

	if _, exists := hub.sessions["slow"]; exists {
		t.Error("Client with a full queue should be unregistered")
	}
}

func dial(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session"))
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *Hub, sessionID string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount(sessionID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d clients on %s, got %d", want, sessionID, hub.ClientCount(sessionID))
}

func TestWebSocketLifecycle(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	conn := dial(t, hub, "ws-test")
	waitForClients(t, hub, "ws-test", 1)

	conn.Close()
	waitForClients(t, hub, "ws-test", 0)
}

func TestWebSocketMessageReceive(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	conn := dial(t, hub, "msg-test")
	defer conn.Close()
	waitForClients(t, hub, "msg-test", 1)

	hub.BroadcastToSession("msg-test", &service.GameView{
		SessionID: "msg-test",
		Board:     []string{"#####", "#@$.#", "#####"},
		Moves:     "→",
		MoveCount: 1,
	})
	hub.BroadcastEvent("msg-test", EventSubmission, map[string]string{"digest": "d1"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if message.SessionID != "msg-test" || message.GameState == nil || message.GameState.Moves != "→" {
		t.Errorf("Unexpected state update %+v", message)
	}

	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}
	message = Message{}
	json.Unmarshal(data, &message)
	if message.Event != EventSubmission {
		t.Errorf("Expected submission event, got %q", message.Event)
	}
}
