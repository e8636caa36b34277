package editor

import (
	"context"
	"errors"
	"log"
	"sync"
)

var ErrLoopClosed = errors.New("editor loop closed")

// Loop 是单 goroutine 的事件循环：宿主的所有修改和异步回调都投递到这里依次执行。
// Post 永不阻塞，任务按投递顺序执行
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool

	// 有新任务时唤醒 Run，容量 1 足够
	wake chan struct{}
	done chan struct{}
}

func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post 把任务排到队尾。Loop 已关闭时返回 false，任务被丢弃
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do 投递任务并等待它执行完
func (l *Loop) Do(ctx context.Context, task func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		task()
	}) {
		return ErrLoopClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 执行任务直到 ctx 结束或 Close 被调用；Close 之前已投递的任务会先跑完
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.tasks
		l.tasks = nil
		closed := l.closed
		l.mu.Unlock()

		for _, task := range batch {
			l.runTask(task)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("editor loop: task panic: %v", r)
		}
	}()
	task()
}

// Close 停止接收新任务，Run 跑完剩余任务后返回
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done 在 Run 返回后关闭
func (l *Loop) Done() <-chan struct{} { return l.done }
