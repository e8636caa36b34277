package upload

import (
	"context"
	"errors"
	"log"
	"sync"

	"annotation-service/backend/internal/editor"
	"annotation-service/backend/internal/markup"
	"annotation-service/backend/internal/ot/delta"
)

var (
	ErrUploadNotConfigured = errors.New("upload function not configured")
	ErrNotImage            = errors.New("file is not an image")
)

// UploadFunc 保存文件并返回可长期访问的 URL
type UploadFunc func(ctx context.Context, f File) (string, error)

// CommentRange 是新建批注时交给宿主的选区和它的纵向偏移
type CommentRange struct {
	Index  int `json:"index"`
	Length int `json:"length"`
	Top    int `json:"top"`
}

type NewCommentFunc func(r CommentRange, h editor.Host)

type Options struct {
	Upload     UploadFunc
	NewComment NewCommentFunc

	// OnError 在上传失败、占位图删除之后调用
	OnError func(tx *Transaction, err error)
	// OnReconciled 在事务结束（成功或失败）后调用
	OnReconciled func(tx *Transaction)
}

// Manager 负责图片插入事务和工具栏操作。
// 除 Wait 外，所有方法都必须在编辑器事件循环上调用；异步结果也投递回同一个循环
type Manager struct {
	host editor.Host
	loop *editor.Loop
	opts Options

	placeholder markup.LoadingImageBlot

	// 进行中的事务，只在事件循环上访问
	live map[string]*Transaction

	wg sync.WaitGroup
}

func NewManager(host editor.Host, loop *editor.Loop, opts Options) *Manager {
	if opts.Upload == nil {
		log.Printf("[Missing config] upload function that returns the uploaded url is required")
	}
	if opts.NewComment == nil {
		log.Printf("[Missing config] newComment function is required")
	}

	m := &Manager{host: host, loop: loop, opts: opts, live: make(map[string]*Transaction)}
	for _, b := range []markup.Blot{markup.ImageBlot{}, m.placeholder} {
		if err := host.Register(b); err != nil {
			log.Printf("upload: register %s failed: %v", b.BlotName(), err)
		}
	}
	return m
}

// Wait 等待所有进行中的读文件/上传 goroutine 把结果投递到事件循环
func (m *Manager) Wait() { m.wg.Wait() }

// selectionOrEnd 没有选区时落在文档末尾（最后的换行之前）
func (m *Manager) selectionOrEnd() editor.Range {
	if r, ok := m.host.Selection(); ok {
		return r
	}
	return editor.Range{Index: max(m.host.Length()-1, 0)}
}

// start 捕获当前选区，同步插入占位图，再并发地读文件和上传
func (m *Manager) start(f File) (*Transaction, error) {
	if m.opts.Upload == nil {
		return nil, ErrUploadNotConfigured
	}

	sel := m.selectionOrEnd()
	tx := newTransaction(sel, f, m.placeholder.Width())
	idx, w := tx.Range.Index, tx.PlaceholderWidth
	m.host.InsertEmbed(idx, m.placeholder.BlotName(), "", editor.SourceUser)
	if err := tx.transition(StatePlaceholderInserted); err != nil {
		return nil, err
	}
	m.shiftSiblings(tx, idx, w, true)
	m.live[tx.ID] = tx
	// 光标放到占位图后面，下一张图排在它后面
	if sel.Collapsed() {
		m.host.SetSelection(editor.Range{Index: idx + w}, editor.SourceSilent)
	}

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		preview := f.DataURL()
		m.loop.Post(func() { m.previewLoaded(tx, preview) })
	}()
	go func() {
		defer m.wg.Done()
		url, err := m.opts.Upload(context.Background(), f)
		m.loop.Post(func() {
			if err != nil {
				m.uploadFailed(tx, err)
				return
			}
			m.uploadSucceeded(tx, url)
		})
	}()
	return tx, nil
}

// previewLoaded 把本地预览填进占位图。上传已经结束（成功或失败）时什么都不做
func (m *Manager) previewLoaded(tx *Transaction, preview string) {
	if tx.State() != StatePlaceholderInserted {
		return
	}
	idx, w := tx.Range.Index, tx.PlaceholderWidth

	// 等长替换，不应该影响选区
	sel, hasSel := m.host.Selection()
	_, err := m.host.UpdateContents(delta.Delta{
		delta.Retain(idx),
		delta.Delete(w),
		delta.InsertEmbed(m.placeholder.BlotName(), preview, w),
	}, editor.SourceAPI)
	if err != nil {
		log.Printf("upload %s: render preview failed: %v", tx.ID, err)
		return
	}
	if hasSel {
		m.host.SetSelection(sel, editor.SourceSilent)
	}
}

func (m *Manager) uploadSucceeded(tx *Transaction, url string) {
	if err := tx.succeed(url); err != nil {
		log.Printf("upload %s: %v", tx.ID, err)
		return
	}
	idx := tx.Range.Index
	m.host.DeleteText(idx, tx.PlaceholderWidth, editor.SourceUser)
	m.host.InsertEmbed(idx, markup.ImageBlotName, url, editor.SourceUser)
	m.host.SetSelection(editor.Range{Index: idx + 1}, editor.SourceUser)
	m.shiftSiblings(tx, idx, 1-tx.PlaceholderWidth, false)
	m.reconcile(tx)
}

func (m *Manager) uploadFailed(tx *Transaction, err error) {
	if terr := tx.fail(err); terr != nil {
		log.Printf("upload %s: %v", tx.ID, terr)
		return
	}
	m.host.DeleteText(tx.Range.Index, tx.PlaceholderWidth, editor.SourceUser)
	m.shiftSiblings(tx, tx.Range.Index, -tx.PlaceholderWidth, false)
	log.Printf("upload %s failed: %v", tx.ID, err)
	if m.opts.OnError != nil {
		m.opts.OnError(tx, err)
	}
	m.reconcile(tx)
}

// shiftSiblings 把其它进行中事务的占位图位置按本事务造成的长度变化平移。
// 用户编辑不会改动捕获的位置，只有事务自己的插入/替换/删除会
func (m *Manager) shiftSiblings(self *Transaction, at, by int, inclusive bool) {
	for id, tx := range m.live {
		if id == self.ID {
			continue
		}
		if tx.Range.Index > at || (inclusive && tx.Range.Index == at) {
			tx.Range.Index += by
		}
	}
}

func (m *Manager) reconcile(tx *Transaction) {
	delete(m.live, tx.ID)
	if err := tx.transition(StateReconciled); err != nil {
		log.Printf("upload %s: %v", tx.ID, err)
		return
	}
	if m.opts.OnReconciled != nil {
		m.opts.OnReconciled(tx)
	}
}
