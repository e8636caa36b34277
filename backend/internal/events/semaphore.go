package events

import (
	"context"
	"errors"
)

var DefaultMaxSemaphore = 100

var (
	ErrAcquireTimeout = errors.New("acquire reach time limit")
	ErrNotAcquired    = errors.New("release failed, semaphore is not acquired")
)

type SemaphoreControl struct {
	ch chan struct{}
}

// NewSemaphoreControl max<=0 时使用 DefaultMaxSemaphore
func NewSemaphoreControl(max int) *SemaphoreControl {
	if max <= 0 {
		max = DefaultMaxSemaphore
	}
	return &SemaphoreControl{ch: make(chan struct{}, max)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrAcquireTimeout
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrNotAcquired
	}
}
