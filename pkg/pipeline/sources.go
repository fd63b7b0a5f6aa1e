package pipeline

import (
	"sync"

	"github.com/jzx17/pipeoffload/pkg/types"
)

// source is an indexable element provider behind a stream
type source[T any] interface {
	types.Source
	size() int
	at(i int) T
}

type arraySource[T any] struct {
	Array []T
}

func (s *arraySource[T]) Kind() types.SourceKind { return types.SourceArray }
func (s *arraySource[T]) EstimateSize() int64    { return int64(len(s.Array)) }
func (s *arraySource[T]) BackingArray() any      { return s.Array }
func (s *arraySource[T]) size() int              { return len(s.Array) }
func (s *arraySource[T]) at(i int) T             { return s.Array[i] }

type intArraySource struct {
	Array []int
}

func (s *intArraySource) Kind() types.SourceKind { return types.SourceIntArray }
func (s *intArraySource) EstimateSize() int64    { return int64(len(s.Array)) }
func (s *intArraySource) BackingArray() any      { return s.Array }
func (s *intArraySource) size() int              { return len(s.Array) }
func (s *intArraySource) at(i int) int           { return s.Array[i] }

type rangeSource struct {
	from, to int
}

func (s *rangeSource) Kind() types.SourceKind { return types.SourceRange }
func (s *rangeSource) EstimateSize() int64    { return int64(s.size()) }
func (s *rangeSource) Bounds() (int, int)     { return s.from, s.to }
func (s *rangeSource) at(i int) int           { return s.from + i }

func (s *rangeSource) size() int {
	if s.to <= s.from {
		return 0
	}
	return s.to - s.from
}

type generatorSource[T any] struct {
	n  int
	fn func(i int) T
}

func (s *generatorSource[T]) Kind() types.SourceKind { return types.SourceGenerator }
func (s *generatorSource[T]) EstimateSize() int64    { return int64(s.n) }
func (s *generatorSource[T]) size() int              { return s.n }
func (s *generatorSource[T]) at(i int) T             { return s.fn(i) }

type listSource[T any] struct {
	list *List[T]
}

func (s *listSource[T]) Kind() types.SourceKind       { return types.SourceList }
func (s *listSource[T]) EstimateSize() int64          { return int64(s.list.Len()) }
func (s *listSource[T]) Collection() types.Collection { return s.list }
func (s *listSource[T]) size() int                    { return s.list.Len() }
func (s *listSource[T]) at(i int) T                   { return s.list.Get(i) }

type syncListSource[T any] struct {
	list *SyncList[T]
}

func (s *syncListSource[T]) Kind() types.SourceKind       { return types.SourceSyncList }
func (s *syncListSource[T]) EstimateSize() int64          { return int64(s.list.Len()) }
func (s *syncListSource[T]) Collection() types.Collection { return s.list }
func (s *syncListSource[T]) size() int                    { return s.list.Len() }
func (s *syncListSource[T]) at(i int) T                   { return s.list.Get(i) }

// List is a growable collection whose element storage streams can hand to an accelerator
type List[T any] struct {
	elems []T
}

// NewList creates a list holding elems
func NewList[T any](elems ...T) *List[T] {
	return &List[T]{elems: append([]T(nil), elems...)}
}

// Add appends v
func (l *List[T]) Add(v T) {
	l.elems = append(l.elems, v)
}

// Get returns the i-th element
func (l *List[T]) Get(i int) T {
	return l.elems[i]
}

// Len returns the number of elements
func (l *List[T]) Len() int {
	return len(l.elems)
}

// Storage returns the live element slice
func (l *List[T]) Storage() any {
	return l.elems
}

// SyncList is a List guarded by a mutex
type SyncList[T any] struct {
	mu    sync.RWMutex
	elems []T
}

// NewSyncList creates a synchronized list holding elems
func NewSyncList[T any](elems ...T) *SyncList[T] {
	return &SyncList[T]{elems: append([]T(nil), elems...)}
}

// Add appends v
func (l *SyncList[T]) Add(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.elems = append(l.elems, v)
}

// Get returns the i-th element
func (l *SyncList[T]) Get(i int) T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.elems[i]
}

// Len returns the number of elements
func (l *SyncList[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.elems)
}

// Storage returns the live element slice as of the call
func (l *SyncList[T]) Storage() any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.elems
}
