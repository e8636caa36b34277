package editor

import (
	"annotation-service/backend/internal/markup"
	"annotation-service/backend/internal/ot/delta"
)

// Source 标记一次变更的来源
type Source string

const (
	SourceUser   Source = "user"
	SourceAPI    Source = "api"
	SourceSilent Source = "silent" // 不触发 text-change
)

type Range struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

func (r Range) Collapsed() bool { return r.Length == 0 }

// Bounds 是某个缓冲区位置渲染后的像素矩形
type Bounds struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

type Attributes map[string]any

// TextChangeHandler 收到 (本次变更, 变更前的完整内容, 来源)
type TextChangeHandler func(change, oldContents delta.Delta, source Source)

// Host 是批注跟踪和图片上传依赖的编辑器能力
type Host interface {
	Selection() (Range, bool)
	SetSelection(r Range, source Source)
	PointToIndex(x, y int) (int, bool)
	Bounds(index, length int) Bounds
	Length() int

	InsertText(index int, text string, source Source) delta.Delta
	InsertEmbed(index int, typ, value string, source Source) delta.Delta
	DeleteText(index, length int, source Source) delta.Delta
	FormatLine(index, length int, name string, value any, source Source) delta.Delta
	RemoveFormat(index, length int, source Source) delta.Delta
	Format(r Range) Attributes
	UpdateContents(d delta.Delta, source Source) (delta.Delta, error)

	Register(b markup.Blot) error
	OnTextChange(h TextChangeHandler) (unsubscribe func())
	HideTooltip()
}
