package markup

import (
	"fmt"
	"sync"
)

// Blot 是可以注册到编辑器的可渲染类型（行内 span、embed 等）
type Blot interface {
	BlotName() string
	TagName() string
}

// EmbedBlot 额外声明自身在缓冲区中占用的宽度；插入和删除都以它为准
type EmbedBlot interface {
	Blot
	Width() int
}

// Element 是渲染后的节点：标签名 + 属性
type Element struct {
	Tag   string            `json:"tag"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

func (e Element) Attr(name string) (string, bool) {
	if e.Attrs == nil {
		return "", false
	}
	v, ok := e.Attrs[name]
	return v, ok
}

// Registry 保存已注册的 blot，按名字查找
type Registry struct {
	mu    sync.RWMutex
	blots map[string]Blot
}

func NewRegistry(blots ...Blot) *Registry {
	r := &Registry{blots: make(map[string]Blot)}
	for _, b := range blots {
		_ = r.Register(b)
	}
	return r
}

func (r *Registry) Register(b Blot) error {
	if b == nil || b.BlotName() == "" {
		return fmt.Errorf("markup: blot without name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blots[b.BlotName()] = b
	return nil
}

func (r *Registry) Lookup(name string) (Blot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blots[name]
	return b, ok
}

// Width 返回 embed 的宽度，未注册或不是 embed 时按 1 计
func (r *Registry) Width(name string) int {
	b, ok := r.Lookup(name)
	if !ok {
		return 1
	}
	if eb, ok := b.(EmbedBlot); ok && eb.Width() > 0 {
		return eb.Width()
	}
	return 1
}
