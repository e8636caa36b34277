package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"annotation-service/backend/internal/anchor"
	"annotation-service/backend/internal/cache"
	"annotation-service/backend/internal/editor"
	"annotation-service/backend/internal/events"
	"annotation-service/backend/internal/markup"
	"annotation-service/backend/internal/ot/delta"
	"annotation-service/backend/internal/upload"
)

var ErrSessionClosed = errors.New("session closed")

// 事件循环之外的 IO（Redis、Kafka）统一用短超时，避免卡住编辑器
const ioTimeout = 500 * time.Millisecond

// Broadcaster 把消息推给同一文档房间里的所有连接
type Broadcaster interface {
	Broadcast(docID string, msg any)
}

// Uploader 为某个文档生成上传回调
type Uploader interface {
	UploadFunc(docID string) upload.UploadFunc
}

// SnapshotStore 是文档内容的持久化
type SnapshotStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error
	LatestSnapshot(ctx context.Context, docID string) (content string, rev uint64, found bool, err error)
}

type EditorOptions struct {
	Debounce     time.Duration
	OverflowStep int
	Layout       editor.Layout
}

// Deps 是所有会话共享的依赖；除 Comments 外都可以为空
type Deps struct {
	Comments  cache.CommentCache
	Uploader  Uploader
	Snapshots SnapshotStore
	Events    events.Publisher
	Broadcast Broadcaster
	Editor    EditorOptions
}

// Session 是一个打开的文档：编辑器宿主 + 事件循环 + 批注跟踪 + 图片上传。
// 所有编辑器操作都通过 loop 串行执行
type Session struct {
	docID string
	deps  Deps

	doc     *editor.Document
	loop    *editor.Loop
	tracker *anchor.Tracker
	uploads *upload.Manager

	// 以下字段只在事件循环上访问
	comments       map[string]anchor.Comment
	pendingMessage any
	rev            uint64

	unsubscribe func()
	cancel      context.CancelFunc
	closeOnce   sync.Once
}

func Open(ctx context.Context, docID string, deps Deps) (*Session, error) {
	if deps.Comments == nil {
		return nil, fmt.Errorf("session %s: comment cache is required", docID)
	}
	if deps.Events == nil {
		deps.Events = events.Discard
	}

	snapshot, err := deps.Comments.Snapshot(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}

	s := &Session{
		docID:    docID,
		deps:     deps,
		doc:      editor.NewDocument("", editor.WithLayout(deps.Editor.Layout)),
		loop:     editor.NewLoop(),
		comments: snapshot,
	}
	if err := s.doc.Register(markup.NewCommentFormat()); err != nil {
		return nil, err
	}

	var uploadFn upload.UploadFunc
	if deps.Uploader != nil {
		uploadFn = deps.Uploader.UploadFunc(docID)
	}
	s.uploads = upload.NewManager(s.doc, s.loop, upload.Options{
		Upload:       uploadFn,
		NewComment:   s.newComment,
		OnError:      s.uploadFailed,
		OnReconciled: s.uploadReconciled,
	})

	// 先恢复内容再订阅，恢复过程不广播也不触发重算
	if deps.Snapshots != nil {
		if err := s.restore(ctx); err != nil {
			return nil, err
		}
	}

	s.tracker = anchor.NewTracker(s.doc, anchor.Options{
		Comments:     s.snapshotComments,
		ShowComments: s.showComments,
		Debounce:     deps.Editor.Debounce,
		OverflowStep: deps.Editor.OverflowStep,
		Loop:         s.loop,
	})
	s.unsubscribe = s.doc.OnTextChange(s.broadcastChange)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop.Run(runCtx)
	return s, nil
}

func (s *Session) restore(ctx context.Context) error {
	content, rev, found, err := s.deps.Snapshots.LatestSnapshot(ctx, s.docID)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		return nil
	}
	var d delta.Delta
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return fmt.Errorf("decode snapshot rev=%d: %w", rev, err)
	}
	// 快照自带结尾换行，去掉新文档原有的那个
	if _, err := s.doc.UpdateContents(append(d, delta.Delete(1)), editor.SourceSilent); err != nil {
		return fmt.Errorf("apply snapshot rev=%d: %w", rev, err)
	}
	s.rev = rev
	return nil
}

func (s *Session) DocID() string { return s.docID }

// do 在事件循环上执行 fn 并等待结束
func (s *Session) do(ctx context.Context, fn func()) error {
	if err := s.loop.Do(ctx, fn); err != nil {
		if errors.Is(err, editor.ErrLoopClosed) {
			return ErrSessionClosed
		}
		return err
	}
	return nil
}

func (s *Session) snapshotComments(editor.Host) map[string]anchor.Comment {
	out := make(map[string]anchor.Comment, len(s.comments))
	for id, c := range s.comments {
		out[id] = c
	}
	return out
}

// showComments 广播新位置，并把位置写回本地快照和缓存。
// 没有被放置的批注（锚点被删到文档开头之前）保留原位置，不显示
func (s *Session) showComments(placed map[string]anchor.Placed, _ editor.Host) {
	ranges := make(map[string]anchor.Range, len(placed))
	for id, p := range placed {
		rg := anchor.Range{Index: p.Range.Index, Length: p.Range.Length}
		c := s.comments[id]
		c.Range = rg
		s.comments[id] = c
		ranges[id] = rg
	}
	s.broadcast(ShowCommentsMessage{Type: "show_comments", DocID: s.docID, Comments: placed})

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	// 缓存可能已经被 REST 接口改过，只回写位置，不整体覆盖
	if err := s.deps.Comments.UpdateRanges(ctx, s.docID, ranges); err != nil {
		log.Printf("session %s: write back comments failed: %v", s.docID, err)
	}
	s.publish(ctx, events.AnnotationEvent{EventType: events.EventCommentsRendered, Count: len(placed)})
}

func (s *Session) newComment(r upload.CommentRange, _ editor.Host) {
	id, err := markup.NewCommentID()
	if err != nil {
		log.Printf("session %s: generate comment id failed: %v", s.docID, err)
		return
	}
	c := anchor.Comment{
		Range:   anchor.Range{Index: r.Index, Length: r.Length},
		Message: s.pendingMessage,
	}
	s.comments[id] = c
	s.doc.FormatText(r.Index, r.Length, markup.CommentBlotName, markup.CommentValue{CommentID: id}, editor.SourceUser)

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := s.deps.Comments.Put(ctx, s.docID, id, c); err != nil {
		log.Printf("session %s: save comment %s failed: %v", s.docID, id, err)
	}
	s.broadcast(NewCommentMessage{Type: "new_comment", DocID: s.docID, CommentID: id, Range: r, Message: c.Message})
	s.publish(ctx, events.AnnotationEvent{EventType: events.EventCommentCreated, CommentID: id})
}

func (s *Session) uploadFailed(tx *upload.Transaction, err error) {
	s.broadcast(UploadMessage{Type: "upload_failed", DocID: s.docID, TransactionID: tx.ID, Error: err.Error()})
}

func (s *Session) uploadReconciled(tx *upload.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := tx.Err(); err != nil {
		s.publish(ctx, events.AnnotationEvent{EventType: events.EventUploadFailed, TransactionID: tx.ID, Error: err.Error()})
		return
	}
	s.broadcast(UploadMessage{Type: "image_uploaded", DocID: s.docID, TransactionID: tx.ID, URL: tx.URL()})
	s.publish(ctx, events.AnnotationEvent{EventType: events.EventImageUploaded, TransactionID: tx.ID, URL: tx.URL()})
}

func (s *Session) broadcastChange(change, _ delta.Delta, source editor.Source) {
	s.broadcast(ChangeMessage{Type: "text_change", DocID: s.docID, Ops: change, Source: source})
}

func (s *Session) broadcast(msg any) {
	if s.deps.Broadcast != nil {
		s.deps.Broadcast.Broadcast(s.docID, msg)
	}
}

func (s *Session) publish(ctx context.Context, evt events.AnnotationEvent) {
	evt.DocID = s.docID
	if err := s.deps.Events.Publish(ctx, evt); err != nil {
		log.Printf("session %s: publish %s failed: %v", s.docID, evt.EventType, err)
	}
}

// ApplyDelta 应用客户端提交的用户编辑
func (s *Session) ApplyDelta(ctx context.Context, d delta.Delta) error {
	var applyErr error
	if err := s.do(ctx, func() {
		_, applyErr = s.doc.UpdateContents(d, editor.SourceUser)
	}); err != nil {
		return err
	}
	return applyErr
}

func (s *Session) Select(ctx context.Context, r editor.Range) error {
	return s.do(ctx, func() { s.doc.SetSelection(r, editor.SourceUser) })
}

// Paste 返回是否有图片项被接收
func (s *Session) Paste(ctx context.Context, evt upload.PasteEvent) (bool, error) {
	var handled bool
	err := s.do(ctx, func() { handled = s.uploads.HandlePaste(evt) })
	return handled, err
}

func (s *Session) Drop(ctx context.Context, evt upload.DropEvent) (bool, error) {
	var handled bool
	err := s.do(ctx, func() { handled = s.uploads.HandleDrop(evt) })
	return handled, err
}

// SelectImage 处理文件选择框的结果，返回事务 ID
func (s *Session) SelectImage(ctx context.Context, f upload.File) (string, error) {
	var id string
	var startErr error
	if err := s.do(ctx, func() {
		tx, err := s.uploads.SelectLocalImage(f)
		if err != nil {
			startErr = err
			return
		}
		id = tx.ID
	}); err != nil {
		return "", err
	}
	return id, startErr
}

// AddComment 对当前选区新建批注，message 原样交给前端渲染
func (s *Session) AddComment(ctx context.Context, message any) error {
	var addErr error
	if err := s.do(ctx, func() {
		s.pendingMessage = message
		defer func() { s.pendingMessage = nil }()
		addErr = s.uploads.AddComment()
	}); err != nil {
		return err
	}
	return addErr
}

func (s *Session) Clean(ctx context.Context) error {
	return s.do(ctx, s.uploads.Clean)
}

func (s *Session) CodeBlock(ctx context.Context) error {
	return s.do(ctx, s.uploads.FixCodeBlock)
}

// Save 写一个新版本的内容快照，返回版本号
func (s *Session) Save(ctx context.Context) (uint64, error) {
	if s.deps.Snapshots == nil {
		return 0, errors.New("snapshot store not configured")
	}
	var content delta.Delta
	var rev uint64
	if err := s.do(ctx, func() {
		content = s.doc.Contents()
		s.rev++
		rev = s.rev
	}); err != nil {
		return 0, err
	}
	b, err := json.Marshal(content)
	if err != nil {
		return 0, err
	}
	if err := s.deps.Snapshots.SaveDocumentSnapshot(ctx, s.docID, rev, string(b)); err != nil {
		return 0, err
	}
	return rev, nil
}

// ReloadComments 从缓存重新读取批注（HTTP 接口修改之后），立刻重新排版
func (s *Session) ReloadComments(ctx context.Context) error {
	snapshot, err := s.deps.Comments.Snapshot(ctx, s.docID)
	if err != nil {
		return err
	}
	return s.do(ctx, func() {
		s.comments = snapshot
		if len(snapshot) == 0 {
			s.broadcast(ShowCommentsMessage{Type: "show_comments", DocID: s.docID, Comments: map[string]anchor.Placed{}})
			return
		}
		s.tracker.Refresh()
	})
}

// Flush 立即执行等待中的批注重算
func (s *Session) Flush() { s.tracker.Flush() }

// State 返回当前内容、纯文本和选区
func (s *Session) State(ctx context.Context) (State, error) {
	var st State
	err := s.do(ctx, func() {
		st.Contents = s.doc.Contents()
		st.Text = s.doc.Text()
		if r, ok := s.doc.Selection(); ok {
			st.Selection = &r
		}
		st.Revision = s.rev
	})
	return st, err
}

func (s *Session) Comments(ctx context.Context) (map[string]anchor.Comment, error) {
	var out map[string]anchor.Comment
	err := s.do(ctx, func() { out = s.snapshotComments(nil) })
	return out, err
}

// WaitUploads 等所有进行中的上传把结果投递回事件循环
func (s *Session) WaitUploads() { s.uploads.Wait() }

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.tracker.Close()
		s.unsubscribe()
		s.loop.Close()
		<-s.loop.Done()
		s.cancel()
	})
}

type State struct {
	Contents  delta.Delta   `json:"contents"`
	Text      string        `json:"text"`
	Selection *editor.Range `json:"selection,omitempty"`
	Revision  uint64        `json:"revision"`
}
