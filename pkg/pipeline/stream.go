// Package pipeline provides lazy streams over slices, lists, ranges and generators.
//
// A stream records its stages and does no work until a terminal operation runs. Terminal
// operations build a chain of stage sinks, one per stage, linked toward the terminal sink.
// Every stage sink implements types.Stage, so the offload dispatcher can recover the pipeline
// shape from the head of the chain. Parallel forEach and reduce over an eligible source ask
// the environment's dispatcher to run the pipeline as an accelerator kernel and fall back to
// chunked evaluation on a worker pool when it reverts.
package pipeline

import (
	"context"
	"errors"

	"github.com/jzx17/pipeoffload/pkg/offload"
	"github.com/jzx17/pipeoffload/pkg/types"
)

// Stream is a lazy pipeline over elements of type T
type Stream[T any] struct {
	src      types.Source
	n        func() int
	wire     wiring[T]
	depth    int
	parallel bool
	env      *Env
}

func newStream[T any](src source[T]) *Stream[T] {
	return &Stream[T]{
		src: src,
		n:   src.size,
		wire: func(down sink[T]) (any, func(int)) {
			return down, func(i int) { down.accept(src.at(i)) }
		},
	}
}

// Of streams the elements of xs. The slice is read, not copied.
func Of[T any](xs ...T) *Stream[T] {
	return newStream[T](&arraySource[T]{Array: xs})
}

// FromList streams the elements of l
func FromList[T any](l *List[T]) *Stream[T] {
	return newStream[T](&listSource[T]{list: l})
}

// FromSyncList streams the elements of l
func FromSyncList[T any](l *SyncList[T]) *Stream[T] {
	return newStream[T](&syncListSource[T]{list: l})
}

// Generate streams fn(0) .. fn(n-1), computed on demand
func Generate[T any](n int, fn func(i int) T) *Stream[T] {
	return newStream[T](&generatorSource[T]{n: n, fn: fn})
}

func (s *Stream[T]) then(wire wiring[T]) *Stream[T] {
	next := *s
	next.wire = wire
	next.depth++
	return &next
}

// WithEnv sets the execution environment
func (s *Stream[T]) WithEnv(env *Env) *Stream[T] {
	next := *s
	next.env = env
	return &next
}

// Parallel marks the stream for parallel evaluation
func (s *Stream[T]) Parallel() *Stream[T] {
	next := *s
	next.parallel = true
	return &next
}

// Sequential marks the stream for sequential evaluation
func (s *Stream[T]) Sequential() *Stream[T] {
	next := *s
	next.parallel = false
	return &next
}

// Filter keeps the elements p accepts
func (s *Stream[T]) Filter(p Predicate[T]) *Stream[T] {
	prev := s.wire
	return s.then(func(down sink[T]) (any, func(int)) {
		return prev(&filterSink[T]{link: link[T]{DownstreamSink: down}, Parent: &stage[Predicate[T]]{Fn: p}})
	})
}

// Peek calls c for each element as it passes
func (s *Stream[T]) Peek(c Consumer[T]) *Stream[T] {
	prev := s.wire
	return s.then(func(down sink[T]) (any, func(int)) {
		return prev(&peekSink[T]{link: link[T]{DownstreamSink: down}, Parent: &stage[Consumer[T]]{Fn: c}})
	})
}

// MapTo replaces each element of s with f applied to it
func MapTo[T, R any](s *Stream[T], f Function[T, R]) *Stream[R] {
	prev := s.wire
	return &Stream[R]{
		src:      s.src,
		n:        s.n,
		depth:    s.depth + 1,
		parallel: s.parallel,
		env:      s.env,
		wire: func(down sink[R]) (any, func(int)) {
			return prev(&mapSink[T, R]{link: link[R]{DownstreamSink: down}, Parent: &stage[Function[T, R]]{Fn: f}})
		},
	}
}

// Depth returns the number of intermediate stages
func (s *Stream[T]) Depth() int {
	return s.depth
}

// IsParallel reports whether the stream evaluates in parallel
func (s *Stream[T]) IsParallel() bool {
	return s.parallel
}

// Source returns the source the stream reads
func (s *Stream[T]) Source() types.Source {
	return s.src
}

func (s *Stream[T]) environment() *Env {
	if s.env != nil {
		return s.env
	}
	return DefaultEnv()
}

func (s *Stream[T]) offloadable() bool {
	return s.parallel && s.environment().offloadEnabled() && offload.Eligible(s.src)
}

// ForEach calls c for every element. In parallel streams c may run concurrently and in any
// order; eligible pipelines may instead run as an accelerator kernel built for c's type.
func (s *Stream[T]) ForEach(ctx context.Context, c Consumer[T]) error {
	if c == nil {
		return errors.New("forEach: nil consumer")
	}
	if s.offloadable() {
		head, _ := s.wire(&forEachSink[T]{Consumer: c})
		return s.environment().dispatcher().ForEach(ctx, s.src, s, head, &forEachOp[T]{stream: s, consumer: c})
	}
	return s.forEach(ctx, c)
}

func (s *Stream[T]) forEach(ctx context.Context, c Consumer[T]) error {
	_, err := evaluate(ctx, s.environment(), s.wire, s.n(), s.parallel, func() *forEachSink[T] {
		return &forEachSink[T]{Consumer: c}
	})
	return err
}

type forEachOp[T any] struct {
	stream   *Stream[T]
	consumer Consumer[T]
}

func (op *forEachOp[T]) EvaluateBaseline(ctx context.Context, _ types.PipelineHelper, _ types.Source) error {
	return op.stream.forEach(ctx, op.consumer)
}

// Count returns the number of elements that reach the end of the stream
func (s *Stream[T]) Count(ctx context.Context) (int, error) {
	terms, err := evaluate(ctx, s.environment(), s.wire, s.n(), s.parallel, func() *countSink[T] {
		return &countSink[T]{}
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, t := range terms {
		total += t.n
	}
	return total, nil
}

// ToSlice collects the elements in source order
func (s *Stream[T]) ToSlice(ctx context.Context) ([]T, error) {
	terms, err := evaluate(ctx, s.environment(), s.wire, s.n(), s.parallel, func() *collectSink[T] {
		return &collectSink[T]{}
	})
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	for _, t := range terms {
		out = append(out, t.out...)
	}
	return out, nil
}
