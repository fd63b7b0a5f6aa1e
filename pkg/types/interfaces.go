// Package types defines core interfaces and types shared by the recognizer, the dispatcher and the stream library
package types

import (
	"context"
	"reflect"
	"time"
)

// StageContractVersion is the version of the stage capability contract the walker understands
const StageContractVersion = 1

// Versioned reports which version of the stage contract a stage implements
type Versioned interface {
	ContractVersion() int
}

// Describer is implemented by stages that report their own shape
type Describer interface {
	StageKind() (OpKind, ElemKind)
}

// OperandCarrier is implemented by stages that expose their captured operand
type OperandCarrier interface {
	Operand() any
}

// Linked is implemented by stages that expose the next stage of the sink chain.
// Downstream returns nil at the terminal stage.
type Linked interface {
	Downstream() any
}

// Stage is the full capability contract a pipeline stage implements on purpose
// so that its shape can be recovered without inspecting its internals
type Stage interface {
	Versioned
	Describer
	OperandCarrier
	Linked
}

// Source describes the internal representation of a pipeline source
type Source interface {
	// Kind returns the representation of the source
	Kind() SourceKind

	// EstimateSize returns the number of elements the source will produce, or -1 if unknown
	EstimateSize() int64
}

// ArrayBacked is implemented by sources reading directly from a slice
type ArrayBacked interface {
	BackingArray() any
}

// Collection is an owning collection exposing its internal element storage
type Collection interface {
	Storage() any
}

// CollectionBacked is implemented by sources reading from an owning collection
type CollectionBacked interface {
	Collection() Collection
}

// Bounded is implemented by integer range sources
type Bounded interface {
	Bounds() (from, to int)
}

// PipelineHelper is the pipeline-side view handed back to baseline evaluation
type PipelineHelper interface {
	// Depth returns the number of intermediate stages before the terminal operation
	Depth() int

	// IsParallel reports whether the pipeline was requested to run in parallel
	IsParallel() bool
}

// ForEachOp is a terminal for-each operation that can always run on the baseline path
type ForEachOp interface {
	// EvaluateBaseline runs the operation without acceleration
	EvaluateBaseline(ctx context.Context, helper PipelineHelper, src Source) error
}

// KernelHandle is an opaque compiled kernel owned by the compiler collaborator
type KernelHandle any

// Compiler turns recognized operations into accelerator kernels.
// A nil handle with a nil error means no kernel could be produced.
type Compiler interface {
	// CompileKernel compiles a kernel from the declared type of a captured operand
	CompileKernel(operandType reflect.Type) (KernelHandle, error)

	// ReductionSource returns kernel source code for a named integer reduction
	ReductionSource(operatorName string) (string, error)

	// CreateKernel builds a kernel from source code
	CreateKernel(source, name string) (KernelHandle, error)

	// ReduceTargetName returns the reduction name implemented by an operator instance
	ReduceTargetName(operator any) string
}

// Executor runs compiled kernels
type Executor interface {
	// Dispatch invokes handle once for count work items with the marshalled arguments.
	// Implementations must not retain args after returning.
	Dispatch(ctx context.Context, handle KernelHandle, count int, args []any) error

	// ReduceInt folds elements with the reduction kernel starting from identity
	ReduceInt(ctx context.Context, handle KernelHandle, identity int, elements []int) (int, error)
}

// NamedReducer is implemented by reduction operators that have a built-in accelerator equivalent
type NamedReducer interface {
	ReducerName() string
}

// Task defines the task interface
type Task interface {
	// Execute executes the task
	Execute(ctx context.Context) error

	// ID returns the task ID (optional, for tracking)
	ID() string
}

// WorkerPool defines the worker pool interface
type WorkerPool interface {
	// Submit submits a task to the worker pool
	Submit(task Task) error

	// SubmitWithTimeout submits a task to the worker pool with timeout
	SubmitWithTimeout(task Task, timeout time.Duration) error

	// Start starts the worker pool
	Start(ctx context.Context) error

	// Stop stops the worker pool
	Stop() error

	// Close closes the worker pool and releases resources
	Close() error

	// Size returns the size of the worker pool
	Size() int

	// Stats returns worker pool statistics
	Stats() WorkerPoolStats
}

// WorkerPoolStats defines basic statistics for worker pools
type WorkerPoolStats struct {
	// PoolSize is the size of the pool
	PoolSize int

	// ActiveWorkers is the number of active worker goroutines
	ActiveWorkers int

	// QueueSize is the current number of tasks in the queue
	QueueSize int

	// QueueCapacity is the capacity of the queue
	QueueCapacity int
}

// ErrorHandler defines an error handling function
type ErrorHandler func(error) error

// Option defines a configuration option function
type Option[T any] func(T)
