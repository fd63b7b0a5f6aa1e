package pipeline

// Operands passed to a parallel stream are captured by value and, when the pipeline is
// offloaded, their struct fields become kernel arguments. Scalar fields may be unexported;
// slice, map, pointer, func and struct fields must be exported. A pipeline whose operand
// breaks that rule still runs and gives the same result, but always on the chunked
// baseline: the first attempt marks its shape as failed in the kernel cache.

// IntPredicate decides whether an int element passes a filter
type IntPredicate interface {
	Test(v int) bool
}

// IntUnaryOperator transforms an int element
type IntUnaryOperator interface {
	Apply(v int) int
}

// IntConsumer observes or consumes an int element. Consumers used by parallel streams must be
// safe for concurrent use.
type IntConsumer interface {
	Accept(v int)
}

// IntBinaryOperator combines two ints. Reductions assume it is associative.
type IntBinaryOperator interface {
	ApplyAsInt(a, b int) int
}

// Predicate decides whether an element passes a filter
type Predicate[T any] interface {
	Test(v T) bool
}

// Function transforms an element of type T into R
type Function[T, R any] interface {
	Apply(v T) R
}

// Consumer observes or consumes an element
type Consumer[T any] interface {
	Accept(v T)
}

// IntPredicateFunc adapts a function to IntPredicate
type IntPredicateFunc func(v int) bool

func (f IntPredicateFunc) Test(v int) bool { return f(v) }

// IntUnaryOperatorFunc adapts a function to IntUnaryOperator
type IntUnaryOperatorFunc func(v int) int

func (f IntUnaryOperatorFunc) Apply(v int) int { return f(v) }

// IntConsumerFunc adapts a function to IntConsumer
type IntConsumerFunc func(v int)

func (f IntConsumerFunc) Accept(v int) { f(v) }

// IntBinaryOperatorFunc adapts a function to IntBinaryOperator
type IntBinaryOperatorFunc func(a, b int) int

func (f IntBinaryOperatorFunc) ApplyAsInt(a, b int) int { return f(a, b) }

// PredicateFunc adapts a function to Predicate
type PredicateFunc[T any] func(v T) bool

func (f PredicateFunc[T]) Test(v T) bool { return f(v) }

// FunctionFunc adapts a function to Function
type FunctionFunc[T, R any] func(v T) R

func (f FunctionFunc[T, R]) Apply(v T) R { return f(v) }

// ConsumerFunc adapts a function to Consumer
type ConsumerFunc[T any] func(v T)

func (f ConsumerFunc[T]) Accept(v T) { f(v) }

// Built-in reductions. Each reports the name of its accelerator equivalent.
type (
	IntSum     struct{}
	IntMin     struct{}
	IntMax     struct{}
	IntProduct struct{}
)

func (IntSum) ApplyAsInt(a, b int) int { return a + b }
func (IntSum) ReducerName() string     { return "sum" }

func (IntProduct) ApplyAsInt(a, b int) int { return a * b }
func (IntProduct) ReducerName() string     { return "product" }

func (IntMin) ApplyAsInt(a, b int) int {
	if b < a {
		return b
	}
	return a
}
func (IntMin) ReducerName() string { return "min" }

func (IntMax) ApplyAsInt(a, b int) int {
	if b > a {
		return b
	}
	return a
}
func (IntMax) ReducerName() string { return "max" }
