package worker

import (
	"context"
	"fmt"
	"sync/atomic"
)

var taskIDCounter int64

// BasicTask runs a function
type BasicTask struct {
	id string
	fn func(ctx context.Context) error
}

// NewBasicTask creates a task with a generated ID
func NewBasicTask(fn func(ctx context.Context) error) *BasicTask {
	id := atomic.AddInt64(&taskIDCounter, 1)
	return &BasicTask{id: fmt.Sprintf("task-%d", id), fn: fn}
}

// NewBasicTaskWithID creates a task with a custom ID
func NewBasicTaskWithID(id string, fn func(ctx context.Context) error) *BasicTask {
	return &BasicTask{id: id, fn: fn}
}

// Execute executes the task
func (t *BasicTask) Execute(ctx context.Context) error {
	if t.fn == nil {
		return fmt.Errorf("task %s has no execution function", t.id)
	}
	return t.fn(ctx)
}

// ID returns the task ID
func (t *BasicTask) ID() string {
	return t.id
}
