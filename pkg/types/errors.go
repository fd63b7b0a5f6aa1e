// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrUndeducible indicates the sink chain could not be walked
	ErrUndeducible = errors.New("pipeline undeducible")

	// ErrUnrecognizedStage indicates a stage whose shape is unknown
	ErrUnrecognizedStage = errors.New("unrecognized pipeline stage")

	// ErrPipelineTooLarge indicates a pipeline with more stages than the accelerated path accepts
	ErrPipelineTooLarge = errors.New("pipeline too large to offload")

	// ErrKernelUnavailable indicates the compiler produced no kernel
	ErrKernelUnavailable = errors.New("offload kernel could not be created")

	// ErrCompileFailed indicates the compiler raised an error
	ErrCompileFailed = errors.New("kernel compilation failed")

	// ErrLinkage indicates the native execution environment is unavailable
	ErrLinkage = errors.New("accelerator runtime unavailable")

	// ErrIneligibleSource indicates a source whose representation cannot be offloaded
	ErrIneligibleSource = errors.New("source not eligible for offload")

	// ErrMarshal indicates kernel arguments could not be assembled
	ErrMarshal = errors.New("kernel arguments could not be marshalled")

	// ErrNeverRevert indicates a revert to the baseline path while reverting is forbidden
	ErrNeverRevert = errors.New("configured to never revert to baseline")

	// ErrWorkerPoolFull indicates the worker pool is full
	ErrWorkerPoolFull = errors.New("worker pool is full")

	// ErrTimeout indicates operation timeout
	ErrTimeout = errors.New("operation timeout")
)

// StrictModeError is returned when a dispatch reverts while strict mode is on
type StrictModeError struct {
	// Operation is the dispatch operation that reverted ("reduce" or "forEach")
	Operation string

	// Shape is the printed descriptor, empty if the walk failed
	Shape string

	// Cause is the reason the accelerated path was abandoned
	Cause error
}

// Error implements the error interface
func (e *StrictModeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s reverted: %v", ErrNeverRevert, e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s: %s reverted", ErrNeverRevert, e.Operation)
}

// Unwrap returns the underlying errors
func (e *StrictModeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrNeverRevert}
	}
	return []error{ErrNeverRevert, e.Cause}
}

// NewStrictModeError creates a strict mode violation for an operation
func NewStrictModeError(operation, shape string, cause error) *StrictModeError {
	return &StrictModeError{
		Operation: operation,
		Shape:     shape,
		Cause:     cause,
	}
}

// TaskError represents a failure inside a worker task
type TaskError struct {
	// TaskID is the task where the error occurred
	TaskID string

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Cause)
}

// Unwrap returns the underlying error
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// NewTaskError creates a new task error
func NewTaskError(taskID string, cause error) *TaskError {
	return &TaskError{
		TaskID:  taskID,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *TaskError) WithContext(key string, value interface{}) *TaskError {
	e.Context[key] = value
	return e
}
