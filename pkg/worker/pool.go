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

const (
	poolStopped int32 = iota
	poolRunning
	poolClosed
)

// Config defines configuration for a fixed worker pool
type Config struct {
	// Size is the number of worker goroutines; 0 means GOMAXPROCS
	Size int

	// QueueSize is the task queue capacity; 0 means twice Size
	QueueSize int

	// SubmitTimeout bounds how long Submit waits for queue space
	SubmitTimeout time.Duration

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// ErrorHandler receives every failed task error
	ErrorHandler types.ErrorHandler
}

// DefaultConfig returns a pool sized to GOMAXPROCS
func DefaultConfig() *Config {
	return &Config{
		SubmitTimeout: 5 * time.Second,
		Clock:         types.NewRealClock(),
	}
}

// Pool is a fixed-size worker pool
type Pool struct {
	config   Config
	workers  []*Worker
	taskChan chan types.Task

	state     int32
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ types.WorkerPool = (*Pool)(nil)

// NewPool creates a pool. It must be started before tasks are submitted.
func NewPool(config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.Size < 0 {
		return nil, fmt.Errorf("pool size must not be negative, got %d", cfg.Size)
	}
	if cfg.QueueSize < 0 {
		return nil, fmt.Errorf("queue size must not be negative, got %d", cfg.QueueSize)
	}
	if cfg.Size == 0 {
		cfg.Size = runtime.GOMAXPROCS(0)
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 2 * cfg.Size
	}
	if cfg.Clock == nil {
		cfg.Clock = types.NewRealClock()
	}

	p := &Pool{
		config:   cfg,
		workers:  make([]*Worker, cfg.Size),
		taskChan: make(chan types.Task, cfg.QueueSize),
	}
	for i := range p.workers {
		w := NewWorkerWithClock(i, p.taskChan, cfg.Clock)
		if cfg.ErrorHandler != nil {
			w.SetErrorHandler(cfg.ErrorHandler)
		}
		p.workers[i] = w
	}
	return p, nil
}

// Start starts every worker
func (p *Pool) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.state, poolStopped, poolRunning) {
		if atomic.LoadInt32(&p.state) == poolRunning {
			return fmt.Errorf("worker pool is already running")
		}
		return fmt.Errorf("worker pool is closed")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Start(p.ctx)
	}
	return nil
}

// Submit queues a task, waiting up to the configured submit timeout
func (p *Pool) Submit(task types.Task) error {
	return p.SubmitWithTimeout(task, p.config.SubmitTimeout)
}

// SubmitWithTimeout queues a task. A non-positive timeout fails fast when the queue is full.
func (p *Pool) SubmitWithTimeout(task types.Task, timeout time.Duration) error {
	switch atomic.LoadInt32(&p.state) {
	case poolStopped:
		return fmt.Errorf("worker pool is not started")
	case poolClosed:
		return fmt.Errorf("worker pool is closed")
	}
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if timeout <= 0 {
		select {
		case p.taskChan <- task:
			return nil
		default:
			return types.ErrWorkerPoolFull
		}
	}

	timer := p.config.Clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.taskChan <- task:
		return nil
	case <-timer.C():
		return types.ErrTimeout
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Stop stops the workers after their current task
func (p *Pool) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.state, poolRunning, poolStopped) {
		if atomic.LoadInt32(&p.state) == poolStopped {
			return fmt.Errorf("worker pool is not running")
		}
		return fmt.Errorf("worker pool is closed")
	}

	p.cancel()
	var firstErr error
	for _, w := range p.workers {
		if err := w.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close stops the pool for good and releases the queue
func (p *Pool) Close() error {
	var closeErr error
	p.closeOnce.Do(func() {
		if atomic.LoadInt32(&p.state) == poolRunning {
			closeErr = p.Stop()
		}
		atomic.StoreInt32(&p.state, poolClosed)
		close(p.taskChan)
	})
	return closeErr
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.config.Size
}

// Stats returns basic pool statistics
func (p *Pool) Stats() types.WorkerPoolStats {
	var active int
	for _, w := range p.workers {
		if w.State() == WorkerStateWorking {
			active++
		}
	}
	return types.WorkerPoolStats{
		PoolSize:      p.config.Size,
		ActiveWorkers: active,
		QueueSize:     len(p.taskChan),
		QueueCapacity: p.config.QueueSize,
	}
}

// WorkerStats returns statistics of every worker
func (p *Pool) WorkerStats() []WorkerStats {
	stats := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		stats[i] = w.Stats()
	}
	return stats
}

// IsRunning reports whether the pool accepts tasks
func (p *Pool) IsRunning() bool {
	return atomic.LoadInt32(&p.state) == poolRunning
}

// IsClosed reports whether the pool was closed
func (p *Pool) IsClosed() bool {
	return atomic.LoadInt32(&p.state) == poolClosed
}
