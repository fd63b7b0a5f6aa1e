package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrUndeducible", ErrUndeducible},
		{"ErrUnrecognizedStage", ErrUnrecognizedStage},
		{"ErrPipelineTooLarge", ErrPipelineTooLarge},
		{"ErrKernelUnavailable", ErrKernelUnavailable},
		{"ErrCompileFailed", ErrCompileFailed},
		{"ErrLinkage", ErrLinkage},
		{"ErrIneligibleSource", ErrIneligibleSource},
		{"ErrMarshal", ErrMarshal},
		{"ErrNeverRevert", ErrNeverRevert},
		{"ErrWorkerPoolFull", ErrWorkerPoolFull},
		{"ErrTimeout", ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("expected error, got nil")
			}
			if tt.err.Error() == "" {
				t.Errorf("expected non-empty error message")
			}
		})
	}
}

func TestTaskError(t *testing.T) {
	t.Run("Basic Error", func(t *testing.T) {
		originalErr := errors.New("original error")
		taskErr := NewTaskError("task-1", originalErr)

		if taskErr.TaskID != "task-1" {
			t.Errorf("expected task id 'task-1', got %q", taskErr.TaskID)
		}

		expectedMsg := "task task-1 failed: original error"
		if taskErr.Error() != expectedMsg {
			t.Errorf("expected message %q, got %q", expectedMsg, taskErr.Error())
		}
	})

	t.Run("Error Unwrapping", func(t *testing.T) {
		taskErr := NewTaskError("task-2", ErrTimeout)

		if errors.Unwrap(taskErr) != ErrTimeout {
			t.Errorf("expected unwrapped error to be ErrTimeout")
		}
		if !errors.Is(fmt.Errorf("wrapped: %w", taskErr), ErrTimeout) {
			t.Errorf("expected wrapped task error to match ErrTimeout")
		}
	})

	t.Run("WithContext", func(t *testing.T) {
		taskErr := NewTaskError("task-3", errors.New("error"))
		taskErr.WithContext("worker_id", 3)

		if taskErr.Context["worker_id"] != 3 {
			t.Errorf("expected worker_id 3 in context")
		}
	})
}
