// Package host implements the accelerator collaborators on the host CPU.
//
// Kernels are Go functions registered per operand type; dispatching one runs its body for
// every work item across a short-lived worker pool. Reduction kernels are described by a small
// text format produced by ReductionSource and parsed back by CreateKernel, mirroring the
// source-then-create flow of a real device toolchain.
package host

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/jzx17/pipeoffload/internal/logger"
	"github.com/jzx17/pipeoffload/pkg/types"
	"github.com/jzx17/pipeoffload/pkg/worker"
)

// Stats is a snapshot of accelerator activity
type Stats struct {
	Kernels    int
	Dispatches int64
	WorkItems  int64
	Reductions int64
}

// Accelerator is a types.Compiler and types.Executor running kernels in-process
type Accelerator struct {
	mu       sync.RWMutex
	builders map[reflect.Type]KernelBuilder

	workers   int
	available atomic.Bool
	log       *logger.Logger

	dispatches atomic.Int64
	workItems  atomic.Int64
	reductions atomic.Int64
}

var (
	_ types.Compiler = (*Accelerator)(nil)
	_ types.Executor = (*Accelerator)(nil)
)

// Option configures an Accelerator
type Option = types.Option[*Accelerator]

// WithWorkers sets how many goroutines run work items; 0 means GOMAXPROCS
func WithWorkers(n int) Option {
	return func(a *Accelerator) {
		if n >= 0 {
			a.workers = n
		}
	}
}

// WithLogger sets the logger used for kernel lifecycle records
func WithLogger(l *logger.Logger) Option {
	return func(a *Accelerator) { a.log = l }
}

// New creates an available accelerator with no registered kernels
func New(opts ...Option) *Accelerator {
	a := &Accelerator{
		builders: make(map[reflect.Type]KernelBuilder),
	}
	a.available.Store(true)
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Global().WithComponent("accel.host")
	}
	return a
}

// Register installs the kernel for operands of type operandType, replacing any previous one
func (a *Accelerator) Register(operandType reflect.Type, build KernelBuilder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.builders[operandType] = build
}

// RegisterFor registers build for the operand type O
func RegisterFor[O any](a *Accelerator, build KernelBuilder) {
	a.Register(reflect.TypeFor[O](), build)
}

// SetAvailable switches the simulated native runtime on or off. While off every call fails
// with types.ErrLinkage.
func (a *Accelerator) SetAvailable(on bool) {
	a.available.Store(on)
}

// Available reports whether the runtime is linked
func (a *Accelerator) Available() bool {
	return a.available.Load()
}

// Stats returns a snapshot of accelerator activity
func (a *Accelerator) Stats() Stats {
	a.mu.RLock()
	kernels := len(a.builders)
	a.mu.RUnlock()
	return Stats{
		Kernels:    kernels,
		Dispatches: a.dispatches.Load(),
		WorkItems:  a.workItems.Load(),
		Reductions: a.reductions.Load(),
	}
}

func (a *Accelerator) linked() error {
	if !a.available.Load() {
		return fmt.Errorf("%w: host runtime disabled", types.ErrLinkage)
	}
	return nil
}

// CompileKernel returns the kernel registered for operandType, or nil if there is none
func (a *Accelerator) CompileKernel(operandType reflect.Type) (types.KernelHandle, error) {
	if err := a.linked(); err != nil {
		return nil, err
	}
	if operandType == nil {
		return nil, nil
	}

	a.mu.RLock()
	build, ok := a.builders[operandType]
	a.mu.RUnlock()
	if !ok {
		a.log.Debug("no kernel registered", logger.Fields("operand_type", operandType.String()))
		return nil, nil
	}

	k := &Kernel{
		Name:        "kernel_" + operandType.String(),
		OperandType: operandType,
		build:       build,
	}
	a.log.Debug("kernel compiled", logger.Fields("kernel", k.Name))
	return k, nil
}

// ReductionSource returns the kernel source of a named integer reduction
func (a *Accelerator) ReductionSource(operatorName string) (string, error) {
	if err := a.linked(); err != nil {
		return "", err
	}
	if operatorName == "" {
		return "", fmt.Errorf("empty reduction name")
	}
	return reductionSource(operatorName), nil
}

// CreateKernel parses reduction kernel source. Source naming an unknown reduction yields nil.
func (a *Accelerator) CreateKernel(source, name string) (types.KernelHandle, error) {
	if err := a.linked(); err != nil {
		return nil, err
	}
	k, err := parseReduction(source)
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", name, err)
	}
	if k == nil {
		a.log.Debug("unknown reduction", logger.Fields("kernel", name))
		return nil, nil
	}
	return k, nil
}

// ReduceTargetName returns the built-in reduction an operator implements, or ""
func (a *Accelerator) ReduceTargetName(operator any) string {
	r, ok := operator.(types.NamedReducer)
	if !ok {
		return ""
	}
	name := r.ReducerName()
	if _, known := reductions[name]; !known {
		return ""
	}
	return name
}

// Dispatch runs the kernel body for work items 0..count-1
func (a *Accelerator) Dispatch(ctx context.Context, handle types.KernelHandle, count int, args []any) error {
	if err := a.linked(); err != nil {
		return err
	}
	k, ok := handle.(*Kernel)
	if !ok || k == nil {
		return fmt.Errorf("dispatch: unexpected kernel handle %T", handle)
	}

	body, err := k.build(args)
	if err != nil {
		return fmt.Errorf("kernel %s: bind arguments: %w", k.Name, err)
	}

	a.dispatches.Add(1)
	err = worker.ParallelFor(ctx, a.workers, count, func(ctx context.Context, lo, hi int) error {
		for gid := lo; gid < hi; gid++ {
			body(gid)
		}
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("kernel %s: %w", k.Name, err)
	}
	if count > 0 {
		a.workItems.Add(int64(count))
	}
	return nil
}

// ReduceInt folds elements in parallel chunks and combines the partial results in order
func (a *Accelerator) ReduceInt(ctx context.Context, handle types.KernelHandle, identity int, elements []int) (int, error) {
	if err := a.linked(); err != nil {
		return 0, err
	}
	k, ok := handle.(*ReductionKernel)
	if !ok || k == nil {
		return 0, fmt.Errorf("reduce: unexpected kernel handle %T", handle)
	}
	a.reductions.Add(1)

	chunks := worker.Chunks(len(elements), a.parallelism())
	partials := make([]int, len(chunks))
	err := worker.ParallelFor(ctx, len(chunks), len(chunks), func(ctx context.Context, lo, hi int) error {
		for c := lo; c < hi; c++ {
			acc := identity
			for _, e := range elements[chunks[c].Lo:chunks[c].Hi] {
				acc = k.combine(acc, e)
			}
			partials[c] = acc
		}
		return ctx.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("kernel %s: %w", k.Name, err)
	}

	result := identity
	for _, p := range partials {
		result = k.combine(result, p)
	}
	return result, nil
}

func (a *Accelerator) parallelism() int {
	if a.workers > 0 {
		return a.workers
	}
	return runtime.GOMAXPROCS(0)
}
