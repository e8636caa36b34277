package session

import (
	"annotation-service/backend/internal/anchor"
	"annotation-service/backend/internal/editor"
	"annotation-service/backend/internal/ot/delta"
	"annotation-service/backend/internal/upload"
)

// 会话推给房间内所有连接的消息

type ShowCommentsMessage struct {
	Type     string                   `json:"type"` // 固定 "show_comments"
	DocID    string                   `json:"docId"`
	Comments map[string]anchor.Placed `json:"comments"`
}

type NewCommentMessage struct {
	Type      string              `json:"type"` // 固定 "new_comment"
	DocID     string              `json:"docId"`
	CommentID string              `json:"commentId"`
	Range     upload.CommentRange `json:"range"`
	Message   any                 `json:"message,omitempty"`
}

type ChangeMessage struct {
	Type   string        `json:"type"` // 固定 "text_change"
	DocID  string        `json:"docId"`
	Ops    delta.Delta   `json:"ops"`
	Source editor.Source `json:"source"`
}

// UploadMessage 用于 "image_uploaded" 和 "upload_failed"
type UploadMessage struct {
	Type          string `json:"type"`
	DocID         string `json:"docId"`
	TransactionID string `json:"transactionId"`
	URL           string `json:"url,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (m ShowCommentsMessage) MessageType() string { return m.Type }
func (m NewCommentMessage) MessageType() string   { return m.Type }
func (m ChangeMessage) MessageType() string       { return m.Type }
func (m UploadMessage) MessageType() string       { return m.Type }
