package ws

import (
	"log"
	"sync"
)

type Hub struct {
	// 读写锁保护 rooms；广播持读锁入队，Leave 持写锁，离开后不会再收到消息
	mu sync.RWMutex
	// docID -> set of connections
	rooms map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		// 一个用户可开多个标签页，房间按连接存
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

func (h *Hub) Size(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

// Broadcast 把会话产生的消息推给房间里所有连接，慢连接的消息直接丢弃
func (h *Hub) Broadcast(docID string, msg any) {
	out, ok := msg.(OutboundMessage)
	if !ok {
		log.Printf("hub: drop message %T without type (doc=%s)", msg, docID)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[docID] {
		c.SendMessage_Enqueue(out)
	}
}
