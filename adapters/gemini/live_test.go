package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

func newLiveServer(t *testing.T, handle func(*websocket.Conn)) (*httptest.Server, chan string) {
	t.Helper()
	keys := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.URL.Query().Get("key")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(server.Close)
	return server, keys
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestNewDialer_RequiresAPIKey(t *testing.T) {
	if _, err := NewDialer(Config{}, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error without API key")
	}
}

func TestDialer_RoundTrip(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	server, keys := newLiveServer(t, func(conn *websocket.Conn) {
		var setup map[string]interface{}
		if err := conn.ReadJSON(&setup); err != nil {
			t.Errorf("read setup: %v", err)
			return
		}
		received <- setup
		conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
		conn.ReadMessage()
	})

	dialer, err := NewDialer(Config{APIKey: "secret", URL: wsURL(server)}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewDialer() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := dialer.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	if key := <-keys; key != "secret" {
		t.Errorf("Expected API key in query, got %q", key)
	}

	if err := conn.WriteJSON(map[string]interface{}{"setup": map[string]string{"model": "models/x"}}); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}

	select {
	case msg := <-received:
		if _, ok := msg["setup"]; !ok {
			t.Errorf("Expected setup frame, got %v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the frame")
	}

	data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}
	var ack map[string]interface{}
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("invalid frame: %v", err)
	}
	if _, ok := ack["setupComplete"]; !ok {
		t.Errorf("Expected setupComplete, got %s", data)
	}
}

func TestConn_WriteAfterClose(t *testing.T) {
	server, _ := newLiveServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})
	dialer, err := NewDialer(Config{APIKey: "k", URL: wsURL(server)}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewDialer() error: %v", err)
	}
	conn, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	conn.Close()

	if err := conn.WriteJSON(map[string]int{"a": 1}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
	if _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected read error after close")
	}
}

func TestDialer_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer server.Close()

	dialer, err := NewDialer(Config{APIKey: "k", URL: wsURL(server)}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewDialer() error: %v", err)
	}
	_, err = dialer.Dial(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("Expected status in error, got %v", err)
	}
}
