package ws

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"annotation-service/backend/internal/session"
	"annotation-service/backend/internal/upload"
)

// 单条客户端消息的处理时限
const requestTimeout = 2 * time.Second

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	sess     *session.Session
	docID    string
	userID   uint64
	username string
	// 出站队列，由 writeLoop 消费
	send chan OutboundMessage
}

func NewConn(ws *websocket.Conn, hub *Hub, sess *session.Session, userID uint64, username string) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		sess:     sess,
		docID:    sess.DocID(),
		userID:   userID,
		username: username,
		send:     make(chan OutboundMessage, 64),
	}
}

func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
		// 队列满了，丢弃
	}
}

func (c *Conn) replyError(err error) {
	c.SendMessage_Enqueue(ServerMessage{Type: "error", DocID: c.docID, Content: err.Error()})
}

// handle 处理一条客户端消息；编辑结果通过会话广播回来，这里只回 ack 或错误
func (c *Conn) handle(ctx context.Context, msg ClientMessage) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case "heartbeat":
		c.SendMessage_Enqueue(ServerMessage{Type: "feedback", Content: "Heartbeat received"})

	case "text_change":
		err = c.sess.ApplyDelta(ctx, msg.Ops)

	case "select":
		if msg.Range == nil {
			c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: "missing range"})
			return
		}
		err = c.sess.Select(ctx, *msg.Range)

	case "paste":
		var handled bool
		handled, err = c.sess.Paste(ctx, upload.PasteEvent{Items: msg.Items})
		if err == nil && !handled {
			c.SendMessage_Enqueue(ServerMessage{Type: "ignored", Content: "no image in clipboard"})
		}

	case "drop":
		var handled bool
		handled, err = c.sess.Drop(ctx, upload.DropEvent{X: msg.X, Y: msg.Y, Files: msg.Files})
		if err == nil && !handled {
			c.SendMessage_Enqueue(ServerMessage{Type: "ignored", Content: "no file dropped"})
		}

	case "select_image":
		if msg.File == nil {
			c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: "missing file"})
			return
		}
		var id string
		if id, err = c.sess.SelectImage(ctx, *msg.File); err == nil {
			c.SendMessage_Enqueue(ServerMessage{Type: "upload_started", DocID: c.docID, TransactionID: id})
		}

	case "add_comment":
		err = c.sess.AddComment(ctx, msg.Message)

	case "clean":
		err = c.sess.Clean(ctx)

	case "code_block":
		err = c.sess.CodeBlock(ctx)

	case "save":
		var rev uint64
		if rev, err = c.sess.Save(ctx); err == nil {
			c.SendMessage_Enqueue(ServerMessage{Type: "saved", DocID: c.docID, Revision: rev})
		}

	case "load":
		var st session.State
		if st, err = c.sess.State(ctx); err == nil {
			c.SendMessage_Enqueue(ServerMessage{Type: "state", DocID: c.docID, Revision: st.Revision, State: &st})
		}

	default:
		c.SendMessage_Enqueue(ServerMessage{Type: "ignored", Content: "Unknown message type"})
	}
	if err != nil {
		log.Printf("ws %s (user=%d, doc=%s): %v", msg.Type, c.userID, c.docID, err)
		c.replyError(err)
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("read json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
			}
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *Conn) writeLoop() {
	// 持续消费出站队列，直到 send 被关闭
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			log.Printf("write json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
		}
	}
}
