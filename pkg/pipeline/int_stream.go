package pipeline

import (
	"context"
	"errors"

	"github.com/jzx17/pipeoffload/pkg/offload"
	"github.com/jzx17/pipeoffload/pkg/types"
)

// IntStream is a lazy pipeline over int elements
type IntStream struct {
	src      types.Source
	n        func() int
	wire     wiring[int]
	depth    int
	parallel bool
	env      *Env
}

func newIntStream(src source[int]) *IntStream {
	return &IntStream{
		src: src,
		n:   src.size,
		wire: func(down sink[int]) (any, func(int)) {
			return down, func(i int) { down.accept(src.at(i)) }
		},
	}
}

// OfInts streams the elements of xs. The slice is read, not copied.
func OfInts(xs ...int) *IntStream {
	return newIntStream(&intArraySource{Array: xs})
}

// Range streams the ints in [from, to)
func Range(from, to int) *IntStream {
	return newIntStream(&rangeSource{from: from, to: to})
}

// GenerateInts streams fn(0) .. fn(n-1), computed on demand
func GenerateInts(n int, fn func(i int) int) *IntStream {
	return newIntStream(&generatorSource[int]{n: n, fn: fn})
}

// FromIntList streams the elements of l
func FromIntList(l *List[int]) *IntStream {
	return newIntStream(&listSource[int]{list: l})
}

// FromIntSyncList streams the elements of l
func FromIntSyncList(l *SyncList[int]) *IntStream {
	return newIntStream(&syncListSource[int]{list: l})
}

func (s *IntStream) then(wire wiring[int]) *IntStream {
	next := *s
	next.wire = wire
	next.depth++
	return &next
}

// WithEnv sets the execution environment
func (s *IntStream) WithEnv(env *Env) *IntStream {
	next := *s
	next.env = env
	return &next
}

// Parallel marks the stream for parallel evaluation
func (s *IntStream) Parallel() *IntStream {
	next := *s
	next.parallel = true
	return &next
}

// Sequential marks the stream for sequential evaluation
func (s *IntStream) Sequential() *IntStream {
	next := *s
	next.parallel = false
	return &next
}

// Filter keeps the elements p accepts
func (s *IntStream) Filter(p IntPredicate) *IntStream {
	prev := s.wire
	return s.then(func(down sink[int]) (any, func(int)) {
		return prev(&intFilterSink{link: link[int]{DownstreamSink: down}, Parent: &stage[IntPredicate]{Fn: p}})
	})
}

// Map replaces each element with f applied to it
func (s *IntStream) Map(f IntUnaryOperator) *IntStream {
	prev := s.wire
	return s.then(func(down sink[int]) (any, func(int)) {
		return prev(&intMapSink{link: link[int]{DownstreamSink: down}, Parent: &stage[IntUnaryOperator]{Fn: f}})
	})
}

// Peek calls c for each element as it passes
func (s *IntStream) Peek(c IntConsumer) *IntStream {
	prev := s.wire
	return s.then(func(down sink[int]) (any, func(int)) {
		return prev(&intPeekSink{link: link[int]{DownstreamSink: down}, Parent: &stage[IntConsumer]{Fn: c}})
	})
}

// Depth returns the number of intermediate stages
func (s *IntStream) Depth() int {
	return s.depth
}

// IsParallel reports whether the stream evaluates in parallel
func (s *IntStream) IsParallel() bool {
	return s.parallel
}

// Source returns the source the stream reads
func (s *IntStream) Source() types.Source {
	return s.src
}

func (s *IntStream) environment() *Env {
	if s.env != nil {
		return s.env
	}
	return DefaultEnv()
}

// offloadable reports whether a terminal operation should consult the dispatcher
func (s *IntStream) offloadable() bool {
	return s.parallel && s.environment().offloadEnabled() && offload.Eligible(s.src)
}

// ForEach calls c for every element. In parallel streams c may run concurrently and in any
// order; eligible pipelines may instead run as an accelerator kernel built for c's type.
func (s *IntStream) ForEach(ctx context.Context, c IntConsumer) error {
	if c == nil {
		return errors.New("forEach: nil consumer")
	}
	if s.offloadable() {
		head, _ := s.wire(&intForEachSink{Consumer: c})
		return s.environment().dispatcher().ForEach(ctx, s.src, s, head, &intForEachOp{stream: s, consumer: c})
	}
	return s.forEach(ctx, c)
}

func (s *IntStream) forEach(ctx context.Context, c IntConsumer) error {
	_, err := evaluate(ctx, s.environment(), s.wire, s.n(), s.parallel, func() *intForEachSink {
		return &intForEachSink{Consumer: c}
	})
	return err
}

// intForEachOp runs a forEach on the baseline path when the dispatcher reverts
type intForEachOp struct {
	stream   *IntStream
	consumer IntConsumer
}

func (op *intForEachOp) EvaluateBaseline(ctx context.Context, _ types.PipelineHelper, _ types.Source) error {
	return op.stream.forEach(ctx, op.consumer)
}

// Reduce folds the elements with op starting from identity. identity must be an identity of
// op, since parallel evaluation folds each chunk separately.
func (s *IntStream) Reduce(ctx context.Context, identity int, op IntBinaryOperator) (int, error) {
	if op == nil {
		return 0, errors.New("reduce: nil operator")
	}
	if s.offloadable() {
		head, _ := s.wire(&intReduceSink{Operator: op, acc: identity})
		result, offloaded, err := s.environment().dispatcher().ReduceInt(ctx, s.src, s, head, op, "", identity)
		if err != nil {
			return 0, err
		}
		if offloaded {
			return result, nil
		}
	}

	terms, err := evaluate(ctx, s.environment(), s.wire, s.n(), s.parallel, func() *intReduceSink {
		return &intReduceSink{Operator: op, acc: identity}
	})
	if err != nil {
		return 0, err
	}
	result, first := identity, true
	for _, t := range terms {
		if !t.seen {
			continue
		}
		if first {
			result, first = t.acc, false
			continue
		}
		result = op.ApplyAsInt(result, t.acc)
	}
	return result, nil
}

// Sum adds up the elements
func (s *IntStream) Sum(ctx context.Context) (int, error) {
	return s.Reduce(ctx, 0, IntSum{})
}

// Count returns the number of elements that reach the end of the stream
func (s *IntStream) Count(ctx context.Context) (int, error) {
	terms, err := evaluate(ctx, s.environment(), s.wire, s.n(), s.parallel, func() *countSink[int] {
		return &countSink[int]{}
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
func (s *IntStream) ToSlice(ctx context.Context) ([]int, error) {
	terms, err := evaluate(ctx, s.environment(), s.wire, s.n(), s.parallel, func() *collectSink[int] {
		return &collectSink[int]{}
	})
	if err != nil {
		return nil, err
	}
	out := make([]int, 0)
	for _, t := range terms {
		out = append(out, t.out...)
	}
	return out, nil
}

// Boxed converts the stream to a generic stream of ints
func (s *IntStream) Boxed() *Stream[int] {
	return &Stream[int]{
		src:      s.src,
		n:        s.n,
		wire:     s.wire,
		depth:    s.depth,
		parallel: s.parallel,
		env:      s.env,
	}
}
