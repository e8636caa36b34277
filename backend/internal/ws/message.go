package ws

import (
	"annotation-service/backend/internal/editor"
	"annotation-service/backend/internal/ot/delta"
	"annotation-service/backend/internal/session"
	"annotation-service/backend/internal/upload"
)

type ClientMessage struct {
	Type  string        `json:"type"`
	Ops   delta.Delta   `json:"ops,omitempty"`
	Range *editor.Range `json:"range,omitempty"`

	// paste
	Items []upload.PasteItem `json:"items,omitempty"`
	// drop
	X     int           `json:"x,omitempty"`
	Y     int           `json:"y,omitempty"`
	Files []upload.File `json:"files,omitempty"`
	// select_image
	File *upload.File `json:"file,omitempty"`
	// add_comment：批注内容原样保存
	Message any `json:"message,omitempty"`
}

type ServerMessage struct {
	Type          string         `json:"type"`
	UserID        uint64         `json:"userId,omitempty"`
	DocID         string         `json:"docId,omitempty"`
	Revision      uint64         `json:"revision,omitempty"`
	TransactionID string         `json:"transactionId,omitempty"`
	State         *session.State `json:"state,omitempty"`
	Content       string         `json:"content,omitempty"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string { return m.Type }
