package anchor

import (
	"sync"
	"time"
)

const DefaultDebounce = 2000 * time.Millisecond

// Debouncer 把一串密集调用合并成静默 delay 之后的一次回调，回调拿到的是最后一次 Schedule 的参数。
// 回调不会和自己并发执行
type Debouncer[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending bool
	seq     uint64 // 用来识别已经过期的定时器回调
	args    T
	fn      func(T)

	// 保证回调串行
	running sync.Mutex
}

func NewDebouncer[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Schedule 记下参数并重新计时
func (d *Debouncer[T]) Schedule(args T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	d.args = args
	d.seq++
	seq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	// 只有最新一次计时且仍在等待时才执行
	if !d.pending || d.seq != seq || d.fn == nil {
		d.mu.Unlock()
		return
	}
	args := d.take()
	d.mu.Unlock()

	d.running.Lock()
	defer d.running.Unlock()
	d.fn(args)
}

// take 在持锁时调用，取出参数并清掉等待状态
func (d *Debouncer[T]) take() T {
	args := d.args
	var zero T
	d.args = zero
	d.pending = false
	return args
}

// Flush 立即执行等待中的调用（如果有），并取消定时器
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	if !d.pending || d.fn == nil {
		d.mu.Unlock()
		return
	}
	args := d.take()
	d.mu.Unlock()

	d.running.Lock()
	defer d.running.Unlock()
	d.fn(args)
}

// Cancel 丢弃等待中的调用
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
	var zero T
	d.args = zero
}

func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}
