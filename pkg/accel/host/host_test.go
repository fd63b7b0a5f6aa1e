package host

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/pipeoffload/internal/logger"
	"github.com/jzx17/pipeoffload/pkg/types"
)

type squareInto struct {
	Out []int
}

type addOffset struct {
	Offset int
}

type sumReducer struct{}

func (sumReducer) ReducerName() string { return ReduceSum }

type bogusReducer struct{}

func (bogusReducer) ReducerName() string { return "xor" }

func newTestAccelerator(opts ...Option) *Accelerator {
	return New(append([]Option{WithLogger(logger.Nop())}, opts...)...)
}

func squareKernel(args []any) (func(int), error) {
	if len(args) != 2 {
		return nil, errors.New("want out and input")
	}
	out, ok1 := args[0].([]int)
	in, ok2 := args[1].([]int)
	if !ok1 || !ok2 {
		return nil, errors.New("want []int arguments")
	}
	return func(gid int) { out[gid] = in[gid] * in[gid] }, nil
}

func TestCompileKernelRegisteredType(t *testing.T) {
	a := newTestAccelerator()
	RegisterFor[squareInto](a, squareKernel)

	h, err := a.CompileKernel(reflect.TypeFor[squareInto]())
	require.NoError(t, err)
	k, ok := h.(*Kernel)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[squareInto](), k.OperandType)
	assert.Contains(t, k.String(), "squareInto")
	assert.Equal(t, 1, a.Stats().Kernels)
}

func TestCompileKernelUnknownTypeYieldsNil(t *testing.T) {
	a := newTestAccelerator()

	h, err := a.CompileKernel(reflect.TypeFor[addOffset]())
	assert.NoError(t, err)
	assert.Nil(t, h)

	h, err = a.CompileKernel(nil)
	assert.NoError(t, err)
	assert.Nil(t, h)
}

func TestDispatchRunsEveryWorkItem(t *testing.T) {
	a := newTestAccelerator(WithWorkers(4))
	RegisterFor[squareInto](a, squareKernel)
	h, err := a.CompileKernel(reflect.TypeFor[squareInto]())
	require.NoError(t, err)

	in := []int{1, 2, 3, 4, 5, 6, 7}
	out := make([]int, len(in))
	require.NoError(t, a.Dispatch(context.Background(), h, len(in), []any{out, in}))

	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49}, out)
	stats := a.Stats()
	assert.Equal(t, int64(1), stats.Dispatches)
	assert.Equal(t, int64(len(in)), stats.WorkItems)
}

func TestDispatchRangeWithoutStorage(t *testing.T) {
	a := newTestAccelerator()
	var total atomic.Int64
	RegisterFor[addOffset](a, func(args []any) (func(int), error) {
		offset := args[0].(int)
		return func(gid int) { total.Add(int64(gid + offset)) }, nil
	})
	h, err := a.CompileKernel(reflect.TypeFor[addOffset]())
	require.NoError(t, err)

	require.NoError(t, a.Dispatch(context.Background(), h, 100, []any{1}))
	assert.Equal(t, int64(5050), total.Load())
}

func TestDispatchBindError(t *testing.T) {
	a := newTestAccelerator()
	RegisterFor[squareInto](a, squareKernel)
	h, err := a.CompileKernel(reflect.TypeFor[squareInto]())
	require.NoError(t, err)

	err = a.Dispatch(context.Background(), h, 3, []any{"nope"})
	assert.ErrorContains(t, err, "bind arguments")
	assert.Zero(t, a.Stats().Dispatches)
}

func TestDispatchRejectsForeignHandle(t *testing.T) {
	a := newTestAccelerator()
	err := a.Dispatch(context.Background(), "handle", 1, nil)
	assert.ErrorContains(t, err, "unexpected kernel handle")

	_, err = a.ReduceInt(context.Background(), &Kernel{}, 0, []int{1})
	assert.ErrorContains(t, err, "unexpected kernel handle")
}

func TestReductionSourceRoundTrip(t *testing.T) {
	a := newTestAccelerator()

	src, err := a.ReductionSource(ReduceMax)
	require.NoError(t, err)
	assert.Equal(t, ".kernel reduce_max\n.op max\n.type s32\n", src)

	h, err := a.CreateKernel(src, "reduce_max")
	require.NoError(t, err)
	k, ok := h.(*ReductionKernel)
	require.True(t, ok)
	assert.Equal(t, "reduce_max", k.Name)
	assert.Equal(t, ReduceMax, k.Op)
}

func TestCreateKernelUnknownReduction(t *testing.T) {
	a := newTestAccelerator()
	src, err := a.ReductionSource("xor")
	require.NoError(t, err)

	h, err := a.CreateKernel(src, "xor")
	assert.NoError(t, err)
	assert.Nil(t, h)
}

func TestCreateKernelMalformedSource(t *testing.T) {
	a := newTestAccelerator()
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"garbage", "reduce everything", "malformed directive"},
		{"missing op", ".kernel k\n.type s32\n", "missing .op"},
		{"wrong type", ".kernel k\n.op sum\n.type f64\n", "unsupported element type"},
		{"duplicate", ".kernel k\n.op sum\n.op max\n.type s32\n", "duplicate .op"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.CreateKernel(tt.src, "k")
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestCreateKernelIgnoresCommentsAndBlankLines(t *testing.T) {
	a := newTestAccelerator()
	h, err := a.CreateKernel("// generated\n\n.kernel reduce_sum\n.op sum\n.type s32\n", "reduce_sum")
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func TestReduceInt(t *testing.T) {
	a := newTestAccelerator(WithWorkers(3))
	tests := []struct {
		op    string
		elems []int
		want  int
	}{
		{ReduceSum, []int{1, 2, 3, 4}, 10},
		{ReduceProduct, []int{1, 2, 3, 4}, 24},
		{ReduceMin, []int{5, -2, 9, 0, 3}, -2},
		{ReduceMax, []int{5, -2, 9, 0, 3}, 9},
		{ReduceSum, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			src, err := a.ReductionSource(tt.op)
			require.NoError(t, err)
			h, err := a.CreateKernel(src, "reduce_"+tt.op)
			require.NoError(t, err)

			identity, ok := Identity(tt.op)
			require.True(t, ok)
			got, err := a.ReduceInt(context.Background(), h, identity, tt.elems)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentity(t *testing.T) {
	v, ok := Identity(ReduceMin)
	assert.True(t, ok)
	assert.Equal(t, math.MaxInt, v)

	_, ok = Identity("xor")
	assert.False(t, ok)
}

func TestReduceTargetName(t *testing.T) {
	a := newTestAccelerator()
	assert.Equal(t, ReduceSum, a.ReduceTargetName(sumReducer{}))
	assert.Empty(t, a.ReduceTargetName(bogusReducer{}))
	assert.Empty(t, a.ReduceTargetName(func(a, b int) int { return a + b }))
}

func TestUnavailableRuntimeFailsWithLinkage(t *testing.T) {
	a := newTestAccelerator()
	RegisterFor[squareInto](a, squareKernel)
	h, err := a.CompileKernel(reflect.TypeFor[squareInto]())
	require.NoError(t, err)

	a.SetAvailable(false)
	assert.False(t, a.Available())

	_, err = a.CompileKernel(reflect.TypeFor[squareInto]())
	assert.ErrorIs(t, err, types.ErrLinkage)
	_, err = a.ReductionSource(ReduceSum)
	assert.ErrorIs(t, err, types.ErrLinkage)
	_, err = a.CreateKernel("", "k")
	assert.ErrorIs(t, err, types.ErrLinkage)
	assert.ErrorIs(t, a.Dispatch(context.Background(), h, 1, nil), types.ErrLinkage)
	_, err = a.ReduceInt(context.Background(), h, 0, nil)
	assert.ErrorIs(t, err, types.ErrLinkage)

	a.SetAvailable(true)
	_, err = a.CompileKernel(reflect.TypeFor[squareInto]())
	assert.NoError(t, err)
}

func TestDispatchHonoursCancellation(t *testing.T) {
	a := newTestAccelerator(WithWorkers(2))
	RegisterFor[addOffset](a, func([]any) (func(int), error) {
		return func(int) {}, nil
	})
	h, err := a.CompileKernel(reflect.TypeFor[addOffset]())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = a.Dispatch(ctx, h, 10, []any{0})
	assert.ErrorIs(t, err, context.Canceled)
}
