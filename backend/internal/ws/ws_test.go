package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"annotation-service/backend/internal/cache"
	"annotation-service/backend/internal/ot/delta"
	"annotation-service/backend/internal/session"
)

func newServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	reg := session.NewRegistry(session.Deps{
		Comments:  cache.NewMemoryComments(),
		Broadcast: hub,
		Editor:    session.EditorOptions{Debounce: time.Hour},
	})
	t.Cleanup(reg.CloseAll)

	m := NewManager(hub, reg)
	r := gin.New()
	r.GET("/v1/documents/:docId/ws", m.WebSocketConnect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, docID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/documents/" + docID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil 读到指定类型的消息为止
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", typ, err)
		}
		if msg["type"] == typ {
			return msg
		}
	}
}

func waitJoined(t *testing.T, hub *Hub, docID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Size(docID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("room %s size = %d, want %d", docID, hub.Size(docID), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocket_EditIsBroadcastToRoom(t *testing.T) {
	srv, hub := newServer(t)
	a := dial(t, srv, "doc-1")
	b := dial(t, srv, "doc-1")
	readUntil(t, a, "welcome")
	readUntil(t, b, "welcome")
	waitJoined(t, hub, "doc-1", 2)

	if err := a.WriteJSON(ClientMessage{Type: "text_change", Ops: delta.Delta{delta.Insert("hi")}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	msg := readUntil(t, b, "text_change")
	if msg["source"] != "user" {
		t.Fatalf("text_change = %v", msg)
	}

	if err := b.WriteJSON(ClientMessage{Type: "load"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	st := readUntil(t, b, "state")
	if text := st["state"].(map[string]any)["text"]; text != "hi\n" {
		t.Fatalf("state text = %v", text)
	}
}

func TestWebSocket_ErrorsAndUnknown(t *testing.T) {
	srv, _ := newServer(t)
	a := dial(t, srv, "doc-2")
	readUntil(t, a, "welcome")

	_ = a.WriteJSON(ClientMessage{Type: "add_comment", Message: "x"})
	if msg := readUntil(t, a, "error"); !strings.Contains(msg["content"].(string), "non-empty selection") {
		t.Fatalf("error = %v", msg)
	}
	_ = a.WriteJSON(ClientMessage{Type: "heartbeat"})
	if msg := readUntil(t, a, "feedback"); msg["content"] != "Heartbeat received" {
		t.Fatalf("heartbeat reply = %v", msg)
	}
	_ = a.WriteJSON(ClientMessage{Type: "nope"})
	readUntil(t, a, "ignored")
	_ = a.WriteJSON(ClientMessage{Type: "save"})
	if msg := readUntil(t, a, "error"); !strings.Contains(msg["content"].(string), "snapshot store") {
		t.Fatalf("save error = %v", msg)
	}
}

func TestHub_BroadcastAndLeave(t *testing.T) {
	hub := NewHub()
	c := &Conn{send: make(chan OutboundMessage, 1)}
	hub.Join("d", c)
	hub.Broadcast("d", ServerMessage{Type: "x"})
	hub.Broadcast("d", struct{}{}) // 没有类型的消息被丢弃

	select {
	case msg := <-c.send:
		if msg.MessageType() != "x" {
			t.Fatalf("got %v", msg)
		}
	default:
		t.Fatalf("message not delivered")
	}

	// 队列满时不阻塞
	hub.Broadcast("d", ServerMessage{Type: "a"})
	hub.Broadcast("d", ServerMessage{Type: "b"})

	hub.Leave("d", c)
	if hub.Size("d") != 0 {
		t.Fatalf("Size() = %d after Leave", hub.Size("d"))
	}
}
