package anchor

import (
	"log"
	"sort"
	"sync"
	"time"

	"annotation-service/backend/internal/editor"
	"annotation-service/backend/internal/ot/delta"
)

// 超出文档末尾的批注逐个往下叠放的间距（像素）
const DefaultOverflowStep = 25

type Range struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// Comment 是宿主持有的一条批注：位置 + 不透明的内容
type Comment struct {
	Range   Range `json:"range"`
	Message any   `json:"message"`
}

// PlacedRange 在 Range 的基础上带上渲染用的纵向偏移
type PlacedRange struct {
	Index  int `json:"index"`
	Length int `json:"length"`
	Top    int `json:"top"`
}

type Placed struct {
	Range   PlacedRange `json:"range"`
	Message any         `json:"message"`
}

// CommentsFunc 返回当前批注快照。调用方不得修改返回的 map
type CommentsFunc func(h editor.Host) map[string]Comment

// ShowCommentsFunc 接收每轮重算后的批注位置
type ShowCommentsFunc func(placed map[string]Placed, h editor.Host)

type Options struct {
	Comments     CommentsFunc
	ShowComments ShowCommentsFunc

	Debounce     time.Duration // 默认 2s
	OverflowStep int           // 默认 25px

	// Loop 非空时，防抖到期后的重算投递到编辑器事件循环执行
	Loop *editor.Loop
}

type changeArgs struct {
	change delta.Delta
	old    delta.Delta
	source editor.Source
}

// Tracker 在文档变化后重新计算所有批注的位置并交给 ShowComments 渲染
type Tracker struct {
	host editor.Host
	opts Options

	debouncer   *Debouncer[changeArgs]
	unsubscribe func()

	mu     sync.Mutex
	closed bool
}

func NewTracker(host editor.Host, opts Options) *Tracker {
	if opts.Comments == nil {
		log.Printf("[Missing config] comments function that returns the current comments is required")
	}
	if opts.ShowComments == nil {
		log.Printf("[Missing config] showComments function is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.OverflowStep <= 0 {
		opts.OverflowStep = DefaultOverflowStep
	}

	t := &Tracker{host: host, opts: opts}
	t.debouncer = NewDebouncer(opts.Debounce, t.fire)
	if opts.Comments != nil && opts.ShowComments != nil {
		t.unsubscribe = host.OnTextChange(t.OnTextChange)
	}
	return t
}

// OnTextChange 是挂在宿主 text-change 上的回调，只负责重新计时
func (t *Tracker) OnTextChange(change, old delta.Delta, source editor.Source) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	t.debouncer.Schedule(changeArgs{change: change, old: old, source: source})
}

func (t *Tracker) fire(a changeArgs) {
	if t.opts.Loop == nil {
		t.Recompute(a.change, a.old, a.source)
		return
	}
	t.opts.Loop.Post(func() { t.Recompute(a.change, a.old, a.source) })
}

// Flush 立即执行等待中的重算
func (t *Tracker) Flush() { t.debouncer.Flush() }

// Recompute 按 change 调整每条批注的位置并交给 ShowComments。
// 只处理用户产生的变更，且快照非空；返回 nil 表示本轮没有执行
func (t *Tracker) Recompute(change, old delta.Delta, source editor.Source) map[string]Placed {
	if source != editor.SourceUser || t.opts.Comments == nil {
		return nil
	}
	snapshot := t.opts.Comments(t.host)
	if len(snapshot) == 0 {
		return nil
	}

	placed := t.place(snapshot, CalculateIndexChange(change))
	if t.opts.ShowComments != nil {
		t.opts.ShowComments(placed, t.host)
	}
	return placed
}

// Refresh 不移动任何批注，只按当前排版重新计算 top 并渲染
func (t *Tracker) Refresh() map[string]Placed {
	return t.Recompute(delta.Delta{delta.Retain(t.host.Length())}, nil, editor.SourceUser)
}

func (t *Tracker) place(snapshot map[string]Comment, ic IndexChange) map[string]Placed {
	length := t.host.Length()

	// map 无序，按 id 排序保证溢出批注的叠放顺序稳定
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string]Placed, len(snapshot))
	overflow := 0
	for _, id := range ids {
		c := snapshot[id]
		newIndex := AdjustIndex(c.Range.Index, ic)
		if newIndex <= 0 {
			continue
		}

		var top int
		if newIndex >= length {
			// 叠放在最后一行下面
			last := t.host.Bounds(length, 0)
			top = last.Top + last.Height + overflow
			overflow += t.opts.OverflowStep
		} else {
			top = t.host.Bounds(newIndex, 0).Top
		}

		out[id] = Placed{
			Range:   PlacedRange{Index: newIndex, Length: c.Range.Length, Top: top},
			Message: c.Message,
		}
	}
	return out
}

// Close 取消等待中的重算并退订
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.debouncer.Cancel()
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
}
