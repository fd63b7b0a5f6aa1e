// Package testutils provides recording fakes of the accelerator collaborators and test helpers
package testutils

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jzx17/pipeoffload/pkg/types"
)

// Context returns a context cancelled when the test ends or the timeout expires
func Context(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// FakeCompiler is a types.Compiler returning preconfigured handles and counting calls
type FakeCompiler struct {
	mu sync.Mutex

	// Kernels maps operand types to the handle CompileKernel returns
	Kernels map[reflect.Type]types.KernelHandle
	// Reductions maps reduction names to the handle CreateKernel returns
	Reductions map[string]types.KernelHandle
	// Names maps operator types to their reduction name
	Names map[reflect.Type]string
	// Err is returned by every compile call when set
	Err error
	// PanicWith makes every compile call panic with this value when non-nil
	PanicWith any
	// Gate blocks compile calls until it is closed
	Gate chan struct{}
	// OnCompile runs at the start of every compile call
	OnCompile func()

	compiles int
	sources  int
}

// NewFakeCompiler creates a compiler that produces no kernels until configured
func NewFakeCompiler() *FakeCompiler {
	return &FakeCompiler{
		Kernels:    make(map[reflect.Type]types.KernelHandle),
		Reductions: make(map[string]types.KernelHandle),
		Names:      make(map[reflect.Type]string),
	}
}

// CompileKernel implements types.Compiler
func (f *FakeCompiler) CompileKernel(operandType reflect.Type) (types.KernelHandle, error) {
	f.enter()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compiles++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Kernels[operandType], nil
}

// ReductionSource implements types.Compiler
func (f *FakeCompiler) ReductionSource(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources++
	if f.Err != nil {
		return "", f.Err
	}
	return "reduce " + name, nil
}

// CreateKernel implements types.Compiler
func (f *FakeCompiler) CreateKernel(source, name string) (types.KernelHandle, error) {
	f.enter()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compiles++
	return f.Reductions[name], nil
}

// ReduceTargetName implements types.Compiler
func (f *FakeCompiler) ReduceTargetName(operator any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Names[reflect.TypeOf(operator)]
}

// Compiles returns how many kernels were requested through CompileKernel or CreateKernel
func (f *FakeCompiler) Compiles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compiles
}

// Sources returns how many reduction sources were requested
func (f *FakeCompiler) Sources() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources
}

func (f *FakeCompiler) enter() {
	if f.OnCompile != nil {
		f.OnCompile()
	}
	if f.Gate != nil {
		<-f.Gate
	}
	if f.PanicWith != nil {
		panic(f.PanicWith)
	}
}

// DispatchCall records one kernel invocation
type DispatchCall struct {
	Handle types.KernelHandle
	Count  int
	Args   []any
}

// FakeExecutor is a types.Executor that records invocations
type FakeExecutor struct {
	mu sync.Mutex

	// Err is returned by every call when set
	Err error
	// Reduce folds elements for ReduceInt; nil sums them
	Reduce func(identity int, elements []int) int

	calls   []DispatchCall
	reduces int
}

// Dispatch implements types.Executor. Args are copied.
func (f *FakeExecutor) Dispatch(_ context.Context, handle types.KernelHandle, count int, args []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, DispatchCall{
		Handle: handle,
		Count:  count,
		Args:   append([]any(nil), args...),
	})
	return f.Err
}

// ReduceInt implements types.Executor
func (f *FakeExecutor) ReduceInt(_ context.Context, _ types.KernelHandle, identity int, elements []int) (int, error) {
	f.mu.Lock()
	f.reduces++
	reduce, err := f.Reduce, f.Err
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if reduce != nil {
		return reduce(identity, elements), nil
	}
	acc := identity
	for _, e := range elements {
		acc += e
	}
	return acc, nil
}

// Calls returns the recorded dispatches
func (f *FakeExecutor) Calls() []DispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DispatchCall(nil), f.calls...)
}

// Reduces returns how many reductions ran
func (f *FakeExecutor) Reduces() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reduces
}

// FakeForEachOp is a types.ForEachOp counting baseline evaluations
type FakeForEachOp struct {
	mu   sync.Mutex
	Err  error
	runs int
}

// EvaluateBaseline implements types.ForEachOp
func (f *FakeForEachOp) EvaluateBaseline(context.Context, types.PipelineHelper, types.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.Err
}

// Runs returns how many times the baseline ran
func (f *FakeForEachOp) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// Helper is a fixed types.PipelineHelper
type Helper struct {
	Stages   int
	Parallel bool
}

func (h Helper) Depth() int       { return h.Stages }
func (h Helper) IsParallel() bool { return h.Parallel }
