package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"annotation-service/backend/internal/session"
)

// 全局的WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" { // 一些环境可能不发送 Origin，或为 "null"
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	hub      *Hub
	sessions *session.Registry
}

func NewManager(h *Hub, sessions *session.Registry) *Manager {
	return &Manager{hub: h, sessions: sessions}
}

// WebSocketConnect 处理 GET /v1/documents/:docId/ws
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")
	docID := c.Param("docId")
	if docID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing docId"})
		return
	}

	sess, err := m.sessions.Acquire(c.Request.Context(), docID)
	if err != nil {
		log.Printf("open session error (doc=%s): %v", docID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer m.sessions.Release(docID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, sess, userID, username)

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		wsConn.writeLoop()
	}()
	wsConn.SendMessage_Enqueue(ServerMessage{Type: "welcome", DocID: docID, UserID: userID, Content: username})

	m.hub.Join(docID, wsConn)
	// 读循环阻塞到连接关闭
	wsConn.readLoop(c.Request.Context())

	// 先离开房间，之后不会再有广播写入 send
	m.hub.Leave(docID, wsConn)
	close(wsConn.send)
	<-writerDone
}
