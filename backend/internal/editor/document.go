package editor

import (
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"annotation-service/backend/internal/markup"
	"annotation-service/backend/internal/ot/delta"
)

// 代码块格式会派生出高亮属性；单次 RemoveFormat 清不掉派生属性，需要再来一次
var derivedAttrs = map[string]string{
	"code-block": "hljs",
}

func isDerived(key string) bool {
	for _, d := range derivedAttrs {
		if d == key {
			return true
		}
	}
	return false
}

// PlacedEmbed 是文档中某个位置上的 embed
type PlacedEmbed struct {
	Index int         `json:"index"`
	Embed delta.Embed `json:"embed"`
}

type Option func(*Document)

func WithLayout(l Layout) Option { return func(d *Document) { d.layout = l } }

func WithRegistry(r *markup.Registry) Option { return func(d *Document) { d.registry = r } }

// Document 是内存版的编辑器宿主：piece table 缓冲区 + 选区 + 排版 + 变更订阅。
// 文档始终以一个换行结尾，Length() 包含它
type Document struct {
	mu       sync.Mutex
	buf      *PieceTable
	registry *markup.Registry
	layout   Layout

	sel     Range
	hasSel  bool
	tooltip bool

	handlers    map[int]TextChangeHandler
	nextHandler int
}

var _ Host = (*Document)(nil)

func NewDocument(text string, opts ...Option) *Document {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	d := &Document{
		buf:      NewPieceTable(text),
		handlers: make(map[int]TextChangeHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = markup.NewRegistry(markup.ImageBlot{})
	}
	return d
}

func (d *Document) Length() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Len()
}

// Text 返回纯文本，embed 显示为 U+FFFC
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.String()
}

func (d *Document) Contents() delta.Delta {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contentsLocked()
}

func (d *Document) contentsLocked() delta.Delta {
	var out delta.Delta
	var text []rune
	var attrs map[string]any
	flush := func() {
		if len(text) > 0 {
			out = append(out, delta.InsertWith(string(text), attrs))
			text = nil
		}
	}
	cells := d.buf.cells()
	for i := 0; i < len(cells); i++ {
		c := cells[i]
		if c.cont {
			continue
		}
		if c.isEmbedHead() {
			flush()
			w := 1
			for i+w < len(cells) && cells[i+w].cont {
				w++
			}
			op := delta.InsertEmbed(c.embed.Type, c.embed.Value, w)
			op.Attrs = c.attrs
			out = append(out, op)
			continue
		}
		if len(text) > 0 && !reflect.DeepEqual(attrs, c.attrs) {
			flush()
		}
		if len(text) == 0 {
			attrs = c.attrs
		}
		text = append(text, c.r)
	}
	flush()
	return out
}

func (d *Document) Embeds() []PlacedEmbed {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []PlacedEmbed
	for i, c := range d.buf.cells() {
		if c.isEmbedHead() {
			out = append(out, PlacedEmbed{Index: i, Embed: *c.embed})
		}
	}
	return out
}

func (d *Document) Selection() (Range, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sel, d.hasSel
}

func (d *Document) SetSelection(r Range, source Source) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sel = d.clampRange(r)
	d.hasSel = true
}

// Blur 取消焦点，之后 Selection() 返回 false
func (d *Document) Blur() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasSel = false
}

func (d *Document) clampRange(r Range) Range {
	n := d.buf.Len()
	r.Index = min(max(r.Index, 0), n-1)
	r.Length = min(max(r.Length, 0), n-1-r.Index)
	return r
}

func (d *Document) PointToIndex(x, y int) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.layout.pointToIndex(d.buf.cells(), x, y)
}

func (d *Document) Bounds(index, length int) Bounds {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.layout.bounds(d.buf.cells(), index, length)
}

func (d *Document) Register(b markup.Blot) error {
	return d.registry.Register(b)
}

func (d *Document) ShowTooltip() {
	d.mu.Lock()
	d.tooltip = true
	d.mu.Unlock()
}

func (d *Document) HideTooltip() {
	d.mu.Lock()
	d.tooltip = false
	d.mu.Unlock()
}

func (d *Document) TooltipVisible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tooltip
}

func (d *Document) OnTextChange(h TextChangeHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextHandler
	d.nextHandler++
	d.handlers[id] = h
	return func() {
		d.mu.Lock()
		delete(d.handlers, id)
		d.mu.Unlock()
	}
}

// editable 把 [index, index+length) 限制在最后的换行之前，
// 两端落在 embed 中间时向外扩到整个 embed
func (d *Document) editable(index, length int) (int, int) {
	cells := d.buf.cells()
	last := len(cells) - 1
	index = min(max(index, 0), last)
	end := index + min(max(length, 0), last-index)
	for index > 0 && cells[index].cont {
		index--
	}
	for end < last && cells[end].cont {
		end++
	}
	return index, end - index
}

func prefix(index int) delta.Delta {
	if index <= 0 {
		return delta.Delta{}
	}
	return delta.Delta{delta.Retain(index)}
}

func (d *Document) InsertText(index int, text string, source Source) delta.Delta {
	if text == "" {
		return nil
	}
	d.mu.Lock()
	index, _ = d.editable(index, 0)
	change := append(prefix(index), delta.Insert(text))
	return d.commit(change, source)
}

func (d *Document) InsertEmbed(index int, typ, value string, source Source) delta.Delta {
	d.mu.Lock()
	index, _ = d.editable(index, 0)
	change := append(prefix(index), delta.InsertEmbed(typ, value, d.registry.Width(typ)))
	return d.commit(change, source)
}

func (d *Document) DeleteText(index, length int, source Source) delta.Delta {
	d.mu.Lock()
	index, length = d.editable(index, length)
	if length == 0 {
		d.mu.Unlock()
		return nil
	}
	change := append(prefix(index), delta.Delete(length))
	return d.commit(change, source)
}

func (d *Document) FormatText(index, length int, name string, value any, source Source) delta.Delta {
	d.mu.Lock()
	index, length = d.editable(index, length)
	if length == 0 {
		d.mu.Unlock()
		return nil
	}
	change := append(prefix(index), delta.RetainWith(length, map[string]any{name: value}))
	return d.commit(change, source)
}

// FormatLine 把格式应用到覆盖 [index, index+length] 的整行（含行尾换行）
func (d *Document) FormatLine(index, length int, name string, value any, source Source) delta.Delta {
	d.mu.Lock()
	cells := d.buf.cells()
	index, length = d.editable(index, length)
	start := index
	for start > 0 && cells[start-1].r != '\n' {
		start--
	}
	end := index + length
	for end < len(cells)-1 && cells[end].r != '\n' {
		end++
	}
	attrs := map[string]any{name: value}
	if value == false {
		attrs[name] = nil
	}
	if derived, ok := derivedAttrs[name]; ok {
		if attrs[name] == nil {
			attrs[derived] = nil
		} else {
			attrs[derived] = "plain"
		}
	}
	change := append(prefix(start), delta.RetainWith(end-start+1, attrs))
	return d.commit(change, source)
}

// lineAround 返回 index 所在行（不含行尾换行）的起点和长度
func (d *Document) lineAround(index int) (int, int) {
	cells := d.buf.cells()
	start := index
	for start > 0 && cells[start-1].r != '\n' {
		start--
	}
	end := index
	for end < len(cells)-1 && cells[end].r != '\n' {
		end++
	}
	return start, end - start
}

// RemoveFormat 去掉范围内的显式格式。派生属性只有在该格已经没有显式格式时才会被清掉。
// 折叠选区作用于光标所在的整行（行格式）
func (d *Document) RemoveFormat(index, length int, source Source) delta.Delta {
	d.mu.Lock()
	index, length = d.editable(index, length)
	if length == 0 {
		index, length = d.lineAround(index)
	}
	if length == 0 {
		d.mu.Unlock()
		return nil
	}
	cells := d.buf.slice(index, index+length)
	change := prefix(index)
	var run int
	var runAttrs map[string]any
	flush := func() {
		if run == 0 {
			return
		}
		if len(runAttrs) == 0 {
			change = append(change, delta.Retain(run))
		} else {
			change = append(change, delta.RetainWith(run, runAttrs))
		}
		run = 0
	}
	for _, c := range cells {
		removal := removalFor(c.attrs)
		if run > 0 && !reflect.DeepEqual(removal, runAttrs) {
			flush()
		}
		runAttrs = removal
		run++
	}
	flush()
	if !hasFormatting(change) {
		d.mu.Unlock()
		return nil
	}
	return d.commit(change, source)
}

func removalFor(attrs map[string]any) map[string]any {
	explicit := false
	for k := range attrs {
		if !isDerived(k) {
			explicit = true
			break
		}
	}
	out := make(map[string]any, len(attrs))
	for k := range attrs {
		if isDerived(k) && explicit {
			continue
		}
		out[k] = nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func hasFormatting(d delta.Delta) bool {
	for _, op := range d {
		if op.Attrs != nil {
			return true
		}
	}
	return false
}

// Format 返回范围内所有格共有的格式；折叠选区取光标前一格
func (d *Document) Format(r Range) Attributes {
	d.mu.Lock()
	defer d.mu.Unlock()
	r = d.clampRange(r)
	from, to := r.Index, r.Index+r.Length
	if r.Collapsed() {
		if from > 0 {
			from--
		}
		to = from + 1
	}
	cells := d.buf.slice(from, to)
	if len(cells) == 0 {
		return Attributes{}
	}
	out := Attributes{}
	for k, v := range cells[0].attrs {
		out[k] = v
	}
	for _, c := range cells[1:] {
		for k, v := range out {
			if cv, ok := c.attrs[k]; !ok || !reflect.DeepEqual(cv, v) {
				delete(out, k)
			}
		}
	}
	return out
}

// UpdateContents 应用外部传入的 delta。embed 的宽度以注册表为准
func (d *Document) UpdateContents(change delta.Delta, source Source) (delta.Delta, error) {
	normalized := make(delta.Delta, 0, len(change))
	for _, op := range change {
		if op.Kind == delta.KindInsert && op.Embed != nil {
			op.Count = d.registry.Width(op.Embed.Type)
		}
		normalized = append(normalized, op)
	}
	d.mu.Lock()
	if err := d.buf.validate(normalized); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	return d.commit(normalized, source), nil
}

// commit 在持锁状态下调用，负责应用 delta、移动选区、解锁并通知订阅者
func (d *Document) commit(change delta.Delta, source Source) delta.Delta {
	old := d.contentsLocked()
	if err := d.buf.Apply(change); err != nil {
		d.mu.Unlock()
		return nil
	}
	if d.hasSel {
		d.sel = d.clampRange(transformRange(d.sel, change, source))
	}
	var handlers []TextChangeHandler
	if source != SourceSilent {
		// 按订阅顺序通知
		for _, id := range slices.Sorted(maps.Keys(d.handlers)) {
			handlers = append(handlers, d.handlers[id])
		}
	}
	d.mu.Unlock()

	for _, h := range handlers {
		h(change, old, source)
	}
	return change
}
