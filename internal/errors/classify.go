// Package errors classifies dispatch failures into the categories that decide how they are
// handled: recovered locally by reverting to the baseline, or returned to the caller.
package errors

import (
	"errors"
	"sort"
	"sync"

	"github.com/jzx17/pipeoffload/pkg/types"
)

// Category is the failure class of a dispatch error
type Category int

const (
	// CategoryNone is reported for a nil error
	CategoryNone Category = iota
	// CategoryRecognition covers stages or chains that could not be understood
	CategoryRecognition
	// CategoryCompilation covers missing kernels, compiler errors and argument marshalling
	CategoryCompilation
	// CategoryLinkage covers an unavailable accelerator runtime
	CategoryLinkage
	// CategoryEligibility covers sources and pipeline sizes the accelerator does not take
	CategoryEligibility
	// CategoryStrictMode is a revert refused because reverting is forbidden
	CategoryStrictMode
	// CategoryExecution is any other failure, including errors raised by a running kernel
	CategoryExecution
)

// String returns string representation of the category
func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryRecognition:
		return "recognition"
	case CategoryCompilation:
		return "compilation"
	case CategoryLinkage:
		return "linkage"
	case CategoryEligibility:
		return "eligibility"
	case CategoryStrictMode:
		return "strict_mode"
	case CategoryExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Recoverable reports whether failures of this category end in a revert to the baseline
func (c Category) Recoverable() bool {
	switch c {
	case CategoryRecognition, CategoryCompilation, CategoryLinkage, CategoryEligibility:
		return true
	default:
		return false
	}
}

// Classify returns the category of err. Strict mode wins over the cause it wraps, and
// linkage wins over the compile failure it caused.
func Classify(err error) Category {
	var strictErr *types.StrictModeError
	switch {
	case err == nil:
		return CategoryNone
	case errors.As(err, &strictErr), errors.Is(err, types.ErrNeverRevert):
		return CategoryStrictMode
	case errors.Is(err, types.ErrLinkage):
		return CategoryLinkage
	case errors.Is(err, types.ErrUndeducible), errors.Is(err, types.ErrUnrecognizedStage):
		return CategoryRecognition
	case errors.Is(err, types.ErrPipelineTooLarge), errors.Is(err, types.ErrIneligibleSource):
		return CategoryEligibility
	case errors.Is(err, types.ErrCompileFailed), errors.Is(err, types.ErrKernelUnavailable),
		errors.Is(err, types.ErrMarshal):
		return CategoryCompilation
	default:
		return CategoryExecution
	}
}

// Tally counts errors per category. It is safe for concurrent use.
type Tally struct {
	mu     sync.Mutex
	counts map[Category]int
}

// NewTally creates an empty tally
func NewTally() *Tally {
	return &Tally{counts: make(map[Category]int)}
}

// Add classifies err and counts it. Nil errors are ignored.
func (t *Tally) Add(err error) Category {
	c := Classify(err)
	if c == CategoryNone {
		return c
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[c]++
	return c
}

// Count returns how many errors of category c were added
func (t *Tally) Count(c Category) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[c]
}

// Categories returns the categories seen so far, in declaration order
func (t *Tally) Categories() []Category {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Category, 0, len(t.counts))
	for c := range t.counts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
