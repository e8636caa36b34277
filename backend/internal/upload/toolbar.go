package upload

import (
	"errors"

	"annotation-service/backend/internal/editor"
)

var ErrEmptySelection = errors.New("comment needs a non-empty selection")

// Clean 清除选区格式。执行两次：第一次留下的派生样式要第二次才能清掉
func (m *Manager) Clean() {
	r := m.selectionOrEnd()
	m.host.RemoveFormat(r.Index, r.Length, editor.SourceUser)
	m.host.RemoveFormat(r.Index, r.Length, editor.SourceUser)
}

// FixCodeBlock 切换代码块：不是代码块就转成代码块，已经是就去掉格式（同样执行两次）
func (m *Manager) FixCodeBlock() {
	r := m.selectionOrEnd()
	if v, ok := m.host.Format(r)["code-block"]; !ok || v == nil || v == false {
		m.host.FormatLine(r.Index, r.Length, "code-block", true, editor.SourceUser)
		return
	}
	m.host.RemoveFormat(r.Index, r.Length, editor.SourceUser)
	m.host.RemoveFormat(r.Index, r.Length, editor.SourceUser)
}

// AddComment 对非空选区发起新批注，然后收起选区工具提示
func (m *Manager) AddComment() error {
	defer m.host.HideTooltip()

	r, ok := m.host.Selection()
	if !ok || r.Length <= 0 {
		return ErrEmptySelection
	}
	if m.opts.NewComment == nil {
		return nil
	}
	b := m.host.Bounds(r.Index, r.Length)
	m.opts.NewComment(CommentRange{Index: r.Index, Length: r.Length, Top: b.Top}, m.host)
	return nil
}
