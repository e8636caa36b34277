package events

import "time"

const (
	EventImageUploaded    = "IMAGE_UPLOADED"
	EventUploadFailed     = "UPLOAD_FAILED"
	EventCommentsRendered = "COMMENTS_RENDERED"
	EventCommentCreated   = "COMMENT_CREATED"
)

// AnnotationEvent 是发往 Kafka 的通知，消费者只做统计和审计，不要求每条都送达
type AnnotationEvent struct {
	EventType     string    `json:"eventType"`
	DocID         string    `json:"docId"`
	TransactionID string    `json:"transactionId,omitempty"`
	CommentID     string    `json:"commentId,omitempty"`
	URL           string    `json:"url,omitempty"`
	Error         string    `json:"error,omitempty"`
	Count         int       `json:"count,omitempty"` // COMMENTS_RENDERED：本轮渲染的批注数
	OccurredAt    time.Time `json:"occurredAt"`
}
