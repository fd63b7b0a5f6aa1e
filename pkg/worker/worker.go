package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/pipeoffload/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateIdle represents idle worker state
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking represents working worker state
	WorkerStateWorking
	// WorkerStateStopped represents stopped worker state
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker runs tasks from a shared queue on one goroutine
type Worker struct {
	id       int
	state    int32
	taskChan chan types.Task
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	totalProcessed int64
	totalFailed    int64
	lastTaskTime   int64 // Unix nanoseconds

	mu           sync.RWMutex
	errorHandler types.ErrorHandler

	clock types.Clock
}

// NewWorker creates a Worker using the real clock
func NewWorker(id int, taskChan chan types.Task) *Worker {
	return NewWorkerWithClock(id, taskChan, types.NewRealClock())
}

// NewWorkerWithClock creates a Worker with the given clock
func NewWorkerWithClock(id int, taskChan chan types.Task, clock types.Clock) *Worker {
	if clock == nil {
		clock = types.NewRealClock()
	}
	return &Worker{
		id:       id,
		state:    int32(WorkerStateIdle),
		taskChan: taskChan,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		clock:    clock,
	}
}

// ID returns the Worker ID
func (w *Worker) ID() int {
	return w.id
}

// State returns the current Worker state
func (w *Worker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// SetErrorHandler sets the handler receiving failed task errors
func (w *Worker) SetErrorHandler(handler types.ErrorHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errorHandler = handler
}

// Start runs the Worker until ctx is done, Stop is called or the queue is closed
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)
	defer atomic.StoreInt32(&w.state, int32(WorkerStateStopped))

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.quit:
			return
		case task, ok := <-w.taskChan:
			if !ok {
				return
			}
			w.processTask(ctx, task)
		}
	}
}

func (w *Worker) processTask(ctx context.Context, task types.Task) {
	atomic.StoreInt32(&w.state, int32(WorkerStateWorking))
	defer atomic.StoreInt32(&w.state, int32(WorkerStateIdle))

	atomic.StoreInt64(&w.lastTaskTime, w.clock.Now().UnixNano())

	if err := w.executeTask(ctx, task); err != nil {
		atomic.AddInt64(&w.totalFailed, 1)
		w.mu.RLock()
		handler := w.errorHandler
		w.mu.RUnlock()
		if handler != nil {
			_ = handler(err)
		}
		return
	}
	atomic.AddInt64(&w.totalProcessed, 1)
}

// executeTask runs a task, converting a panic into a *types.TaskError
func (w *Worker) executeTask(ctx context.Context, task types.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(task.ID(), r).WithContext("worker_id", w.id)
		}
	}()
	return task.Execute(ctx)
}

// panicError wraps a recovered panic value with the current stack
func panicError(taskID string, r any) *types.TaskError {
	var buf [4096]byte
	n := runtime.Stack(buf[:], false)

	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}
	return types.NewTaskError(taskID, cause).WithContext("stack_trace", string(buf[:n]))
}

// Stop signals the Worker and waits for its current task to finish
func (w *Worker) Stop() error {
	w.stopOnce.Do(func() { close(w.quit) })

	select {
	case <-w.done:
		return nil
	case <-w.clock.After(5 * time.Second):
		return fmt.Errorf("worker %d stop timeout", w.id)
	}
}

// Stats returns Worker statistics
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		ID:             w.id,
		State:          w.State(),
		TotalProcessed: atomic.LoadInt64(&w.totalProcessed),
		TotalFailed:    atomic.LoadInt64(&w.totalFailed),
		LastTaskTime:   time.Unix(0, atomic.LoadInt64(&w.lastTaskTime)),
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	ID             int
	State          WorkerState
	TotalProcessed int64
	TotalFailed    int64
	LastTaskTime   time.Time
}

// SuccessRate returns the share of tasks that succeeded
func (ws WorkerStats) SuccessRate() float64 {
	total := ws.TotalProcessed + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalProcessed) / float64(total)
}
