package delta

import "unicode/utf8"

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// Embed 是插入的非文本内容（图片、加载中占位图等）
type Embed struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type Op struct {
	Kind  Kind           `json:"kind"`            // "retain" / "insert" / "delete"
	Count int            `json:"count,omitempty"` // retain/delete 的长度；embed 插入时为其占用宽度
	Text  string         `json:"text,omitempty"`  // insert 的文本
	Embed *Embed         `json:"embed,omitempty"` // insert 的 embed，与 Text 互斥
	Attrs map[string]any `json:"attrs,omitempty"` // 样式属性（粗体/颜色等），值为 nil 表示移除
}

type Delta []Op

// "ops":[{"retain":5},{"insert":"Hello"}]

func Retain(n int) Op { return Op{Kind: KindRetain, Count: n} }

func RetainWith(n int, attrs map[string]any) Op {
	return Op{Kind: KindRetain, Count: n, Attrs: attrs}
}

func Insert(text string) Op { return Op{Kind: KindInsert, Text: text} }

func InsertWith(text string, attrs map[string]any) Op {
	return Op{Kind: KindInsert, Text: text, Attrs: attrs}
}

// InsertEmbed 构造 embed 插入，width 是该 embed 在缓冲区中占用的单位数
func InsertEmbed(typ, value string, width int) Op {
	if width < 1 {
		width = 1
	}
	return Op{Kind: KindInsert, Embed: &Embed{Type: typ, Value: value}, Count: width}
}

func Delete(n int) Op { return Op{Kind: KindDelete, Count: n} }

// Len 返回该 op 覆盖/产生的缓冲区长度
func (op Op) Len() int {
	switch op.Kind {
	case KindInsert:
		if op.Embed != nil {
			if op.Count < 1 {
				return 1
			}
			return op.Count
		}
		return utf8.RuneCountInString(op.Text)
	case KindRetain, KindDelete:
		if op.Count < 0 {
			return 0
		}
		return op.Count
	}
	return 0
}

// LeadingRetain 第一个 op 是 retain 时返回其长度，即本次编辑开始的位置；否则为 0
func (d Delta) LeadingRetain() int {
	if len(d) == 0 || d[0].Kind != KindRetain {
		return 0
	}
	return d[0].Len()
}

// ChangeLength 插入总长度 - 删除总长度（有符号）
func (d Delta) ChangeLength() int {
	n := 0
	for _, op := range d {
		switch op.Kind {
		case KindInsert:
			n += op.Len()
		case KindDelete:
			n -= op.Len()
		}
	}
	return n
}

// Length 是 delta 作为文档内容（全为 insert）时的长度
func (d Delta) Length() int {
	n := 0
	for _, op := range d {
		if op.Kind == KindInsert {
			n += op.Len()
		}
	}
	return n
}
