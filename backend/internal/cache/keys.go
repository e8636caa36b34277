package cache

import "fmt"

// 键语义：
// - commentsKey(docID): 文档批注快照（Hash<commentId -> Comment JSON>，带 TTL）
//
// {} 包住文档 ID，集群模式下同一文档的键落在同一个 slot

const (
	keyCommentsFmt = "annotation:comments:{doc:%s}"
)

func commentsKey(docID string) string { return fmt.Sprintf(keyCommentsFmt, docID) }
