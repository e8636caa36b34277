package cache

import (
	"context"
	"sync"

	"annotation-service/backend/internal/anchor"
)

// memoryComments 是进程内实现，没有配置 Redis 时使用
type memoryComments struct {
	mu   sync.RWMutex
	docs map[string]map[string]anchor.Comment
}

var _ CommentCache = (*memoryComments)(nil)

func NewMemoryComments() CommentCache {
	return &memoryComments{docs: make(map[string]map[string]anchor.Comment)}
}

func (m *memoryComments) Snapshot(ctx context.Context, docID string) (map[string]anchor.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]anchor.Comment, len(m.docs[docID]))
	for id, c := range m.docs[docID] {
		out[id] = c
	}
	return out, nil
}

func (m *memoryComments) Get(ctx context.Context, docID, commentID string) (anchor.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.docs[docID][commentID]
	if !ok {
		return anchor.Comment{}, ErrCommentNotFound
	}
	return c, nil
}

func (m *memoryComments) Put(ctx context.Context, docID, commentID string, c anchor.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[docID] == nil {
		m.docs[docID] = make(map[string]anchor.Comment)
	}
	m.docs[docID][commentID] = c
	return nil
}

func (m *memoryComments) Delete(ctx context.Context, docID, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[docID][commentID]; !ok {
		return ErrCommentNotFound
	}
	delete(m.docs[docID], commentID)
	return nil
}

func (m *memoryComments) UpdateRanges(ctx context.Context, docID string, ranges map[string]anchor.Range) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	comments := m.docs[docID]
	for id, rg := range ranges {
		c, ok := comments[id]
		if !ok {
			continue
		}
		c.Range = rg
		comments[id] = c
	}
	return nil
}
