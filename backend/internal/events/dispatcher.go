package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

// Publisher 是会话层依赖的发布接口，没有 Kafka 时用 Discard
type Publisher interface {
	Publish(ctx context.Context, evt AnnotationEvent) error
}

type discard struct{}

func (discard) Publish(context.Context, AnnotationEvent) error { return nil }

// Discard 丢弃所有事件
var Discard Publisher = discard{}

// KafkaDispatcher：本地有界队列 + worker 异步发送 + 有限重试。
// Publish 只负责入队，不阻塞编辑器事件循环；队列满时等到 ctx 结束后丢弃
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string

	queue chan AnnotationEvent

	// sem 限制并发的 SendMessage 数量
	sem *SemaphoreControl

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

var _ Publisher = (*KafkaDispatcher)(nil)

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, sem *SemaphoreControl, opt KafkaDispatcherOptions) *KafkaDispatcher {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 1024
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		queue:       make(chan AnnotationEvent, opt.QueueSize),
		sem:         sem,
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}

	d.start()
	return d
}

func (d *KafkaDispatcher) Publish(ctx context.Context, evt AnnotationEvent) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *KafkaDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt AnnotationEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		if d.sem != nil {
			// worker 允许一直等待
			_ = d.sem.Acquire(context.Background())
		}

		err := d.sendOnce(evt)

		if d.sem != nil {
			_ = d.sem.Release()
		}

		if err == nil {
			return
		}

		if attempt == d.maxRetry {
			log.Printf("kafka send failed, drop event type=%s doc=%s worker=%d err=%v",
				evt.EventType, evt.DocID, workerID, err)
			return
		}

		// 退避，每次X2
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if d.maxBackoff > 0 && backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *KafkaDispatcher) sendOnce(evt AnnotationEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.DocID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}

// Close 停止接收新事件，等 worker 把队列里剩下的发完
func (d *KafkaDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}
