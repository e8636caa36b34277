package upload

import (
	"errors"
	"log"

	"annotation-service/backend/internal/editor"
)

// DropEvent 是拖放到编辑区的文件，X/Y 是落点坐标
type DropEvent struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Files []File `json:"files"`
}

// PasteItem 是剪贴板里的一项；File 为空表示不是文件（比如纯文本）
type PasteItem struct {
	MIME string `json:"mime"`
	File *File  `json:"file,omitempty"`
}

type PasteEvent struct {
	Items []PasteItem `json:"items"`
}

// SelectLocalImage 处理文件选择框选中的文件，只接受 image/*
func (m *Manager) SelectLocalImage(f File) (*Transaction, error) {
	if !f.isImage() {
		return nil, ErrNotImage
	}
	return m.start(f)
}

// HandleDrop 先把光标移到落点，下一轮事件循环再读选区并开始事务。
// 只处理第一个文件；返回 false 表示事件里没有文件
func (m *Manager) HandleDrop(evt DropEvent) bool {
	if len(evt.Files) == 0 {
		return false
	}
	if idx, ok := m.host.PointToIndex(evt.X, evt.Y); ok {
		m.host.SetSelection(editor.Range{Index: idx}, editor.SourceUser)
	}
	f := evt.Files[0]
	m.loop.Post(func() { m.startLogged(f) })
	return true
}

// HandlePaste 为每个符合类型的图片项各开一个事务，每个事务在自己的那一轮重新读取选区
func (m *Manager) HandlePaste(evt PasteEvent) bool {
	handled := false
	for _, item := range evt.Items {
		if item.File == nil || !isPasteImage(item.MIME) {
			continue
		}
		f := *item.File
		if f.MIME == "" {
			f.MIME = item.MIME
		}
		handled = true
		m.loop.Post(func() { m.startLogged(f) })
	}
	return handled
}

func (m *Manager) startLogged(f File) {
	if _, err := m.start(f); err != nil && !errors.Is(err, ErrUploadNotConfigured) {
		log.Printf("upload: start %q failed: %v", f.Name, err)
	}
}
