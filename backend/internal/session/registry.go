package session

import (
	"context"
	"sync"
)

type entry struct {
	s    *Session
	refs int
}

// Registry 按文档复用会话：同一文档的多个连接共享一个会话，最后一个连接离开时关闭
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, sessions: make(map[string]*entry)}
}

func (r *Registry) Acquire(ctx context.Context, docID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[docID]; ok {
		e.refs++
		return e.s, nil
	}
	s, err := Open(ctx, docID, r.deps)
	if err != nil {
		return nil, err
	}
	r.sessions[docID] = &entry{s: s, refs: 1}
	return s, nil
}

func (r *Registry) Release(docID string) {
	r.mu.Lock()
	e, ok := r.sessions[docID]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, docID)
	r.mu.Unlock()
	e.s.Close()
}

// Lookup 只返回已经打开的会话
func (r *Registry) Lookup(docID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[docID]
	if !ok {
		return nil, false
	}
	return e.s, true
}

// CommentsChanged 在批注被 HTTP 接口修改后调用；文档没有打开时什么都不做
func (r *Registry) CommentsChanged(ctx context.Context, docID string) error {
	s, ok := r.Lookup(docID)
	if !ok {
		return nil
	}
	return s.ReloadComments(ctx)
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range all {
		e.s.Close()
	}
}
