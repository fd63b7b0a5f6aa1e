package pipeline

import "github.com/jzx17/pipeoffload/pkg/types"

// sink receives the elements flowing out of the previous stage
type sink[T any] interface {
	accept(v T)
}

// stageContract marks a sink as implementing types.Stage
type stageContract struct{}

func (stageContract) ContractVersion() int { return types.StageContractVersion }

// link points an intermediate stage at the next stage of the chain
type link[T any] struct {
	DownstreamSink sink[T]
}

// stage holds the operand a stage was declared with
type stage[F any] struct {
	Fn F
}

type intFilterSink struct {
	stageContract
	link[int]
	Parent *stage[IntPredicate]
}

func (s *intFilterSink) accept(v int) {
	if s.Parent.Fn.Test(v) {
		s.DownstreamSink.accept(v)
	}
}

func (s *intFilterSink) StageKind() (types.OpKind, types.ElemKind) { return types.OpFilter, types.ElemInt }
func (s *intFilterSink) Operand() any                              { return s.Parent.Fn }
func (s *intFilterSink) Downstream() any                           { return s.DownstreamSink }

type intMapSink struct {
	stageContract
	link[int]
	Parent *stage[IntUnaryOperator]
}

func (s *intMapSink) accept(v int) {
	s.DownstreamSink.accept(s.Parent.Fn.Apply(v))
}

func (s *intMapSink) StageKind() (types.OpKind, types.ElemKind) { return types.OpMap, types.ElemInt }
func (s *intMapSink) Operand() any                              { return s.Parent.Fn }
func (s *intMapSink) Downstream() any                           { return s.DownstreamSink }

type intPeekSink struct {
	stageContract
	link[int]
	Parent *stage[IntConsumer]
}

func (s *intPeekSink) accept(v int) {
	s.Parent.Fn.Accept(v)
	s.DownstreamSink.accept(v)
}

func (s *intPeekSink) StageKind() (types.OpKind, types.ElemKind) { return types.OpPeek, types.ElemInt }
func (s *intPeekSink) Operand() any                              { return s.Parent.Fn }
func (s *intPeekSink) Downstream() any                           { return s.DownstreamSink }

type intForEachSink struct {
	stageContract
	Consumer IntConsumer
}

func (s *intForEachSink) accept(v int) {
	s.Consumer.Accept(v)
}

func (s *intForEachSink) StageKind() (types.OpKind, types.ElemKind) { return types.OpForEach, types.ElemInt }
func (s *intForEachSink) Operand() any                              { return s.Consumer }
func (s *intForEachSink) Downstream() any                           { return nil }

type intReduceSink struct {
	stageContract
	Operator IntBinaryOperator
	acc      int
	seen     bool
}

func (s *intReduceSink) accept(v int) {
	s.acc = s.Operator.ApplyAsInt(s.acc, v)
	s.seen = true
}

func (s *intReduceSink) StageKind() (types.OpKind, types.ElemKind) { return types.OpReduce, types.ElemInt }
func (s *intReduceSink) Operand() any                              { return s.Operator }
func (s *intReduceSink) Downstream() any                           { return nil }

type filterSink[T any] struct {
	stageContract
	link[T]
	Parent *stage[Predicate[T]]
}

func (s *filterSink[T]) accept(v T) {
	if s.Parent.Fn.Test(v) {
		s.DownstreamSink.accept(v)
	}
}

func (s *filterSink[T]) StageKind() (types.OpKind, types.ElemKind) {
	return types.OpFilter, types.ElemObject
}
func (s *filterSink[T]) Operand() any    { return s.Parent.Fn }
func (s *filterSink[T]) Downstream() any { return s.DownstreamSink }

type mapSink[T, R any] struct {
	stageContract
	link[R]
	Parent *stage[Function[T, R]]
}

func (s *mapSink[T, R]) accept(v T) {
	s.DownstreamSink.accept(s.Parent.Fn.Apply(v))
}

func (s *mapSink[T, R]) StageKind() (types.OpKind, types.ElemKind) {
	return types.OpMap, types.ElemObject
}
func (s *mapSink[T, R]) Operand() any    { return s.Parent.Fn }
func (s *mapSink[T, R]) Downstream() any { return s.DownstreamSink }

type peekSink[T any] struct {
	stageContract
	link[T]
	Parent *stage[Consumer[T]]
}

func (s *peekSink[T]) accept(v T) {
	s.Parent.Fn.Accept(v)
	s.DownstreamSink.accept(v)
}

func (s *peekSink[T]) StageKind() (types.OpKind, types.ElemKind) {
	return types.OpPeek, types.ElemObject
}
func (s *peekSink[T]) Operand() any    { return s.Parent.Fn }
func (s *peekSink[T]) Downstream() any { return s.DownstreamSink }

type forEachSink[T any] struct {
	stageContract
	Consumer Consumer[T]
}

func (s *forEachSink[T]) accept(v T) {
	s.Consumer.Accept(v)
}

func (s *forEachSink[T]) StageKind() (types.OpKind, types.ElemKind) {
	return types.OpForEach, types.ElemObject
}
func (s *forEachSink[T]) Operand() any    { return s.Consumer }
func (s *forEachSink[T]) Downstream() any { return nil }

// collectSink gathers elements for ToSlice
type collectSink[T any] struct {
	out []T
}

func (s *collectSink[T]) accept(v T) {
	s.out = append(s.out, v)
}

// countSink counts elements
type countSink[T any] struct {
	n int
}

func (s *countSink[T]) accept(T) {
	s.n++
}

var (
	_ types.Stage = (*intFilterSink)(nil)
	_ types.Stage = (*intMapSink)(nil)
	_ types.Stage = (*intPeekSink)(nil)
	_ types.Stage = (*intForEachSink)(nil)
	_ types.Stage = (*intReduceSink)(nil)
	_ types.Stage = (*filterSink[int])(nil)
	_ types.Stage = (*mapSink[int, int])(nil)
	_ types.Stage = (*peekSink[int])(nil)
	_ types.Stage = (*forEachSink[int])(nil)
)
