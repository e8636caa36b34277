package upload

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"annotation-service/backend/internal/editor"
)

var ErrInvalidTransition = errors.New("invalid upload transaction transition")

type State int

const (
	StateCaptured State = iota
	StatePlaceholderInserted
	StateUploaded
	StateFailed
	StateReconciled
)

func (s State) String() string {
	switch s {
	case StateCaptured:
		return "captured"
	case StatePlaceholderInserted:
		return "placeholder_inserted"
	case StateUploaded:
		return "uploaded"
	case StateFailed:
		return "failed"
	case StateReconciled:
		return "reconciled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// 合法的状态迁移
var transitions = map[State][]State{
	StateCaptured:            {StatePlaceholderInserted},
	StatePlaceholderInserted: {StateUploaded, StateFailed},
	StateUploaded:            {StateReconciled},
	StateFailed:              {StateReconciled},
}

// Transaction 是一次图片插入：捕获选区 → 插入占位图 → 上传 → 替换或删除占位图。
// Range 是捕获时的选区，占位图的删除和最终图片的插入都以 Range.Index 为准
type Transaction struct {
	ID               string
	Range            editor.Range
	File             File
	PlaceholderWidth int

	mu    sync.Mutex
	state State
	url   string
	err   error
}

func newTransaction(r editor.Range, f File, width int) *Transaction {
	return &Transaction{
		ID:               uuid.NewString(),
		Range:            r,
		File:             f,
		PlaceholderWidth: width,
		state:            StateCaptured,
	}
}

func (tx *Transaction) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// URL 是上传成功后的地址
func (tx *Transaction) URL() string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.url
}

// Err 是上传失败的原因
func (tx *Transaction) Err() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.err
}

func (tx *Transaction) transition(to State) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	for _, next := range transitions[tx.state] {
		if next == to {
			tx.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tx.state, to)
}

func (tx *Transaction) succeed(url string) error {
	if err := tx.transition(StateUploaded); err != nil {
		return err
	}
	tx.mu.Lock()
	tx.url = url
	tx.mu.Unlock()
	return nil
}

func (tx *Transaction) fail(err error) error {
	if terr := tx.transition(StateFailed); terr != nil {
		return terr
	}
	tx.mu.Lock()
	tx.err = err
	tx.mu.Unlock()
	return nil
}
