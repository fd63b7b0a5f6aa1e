package pipeinfo

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/pipeoffload/pkg/diag"
	"github.com/jzx17/pipeoffload/pkg/types"
)

// capStage implements the stage contract directly
type capStage struct {
	op      types.OpKind
	elem    types.ElemKind
	operand any
	down    any
	version int
}

func (s *capStage) ContractVersion() int {
	if s.version != 0 {
		return s.version
	}
	return types.StageContractVersion
}
func (s *capStage) StageKind() (types.OpKind, types.ElemKind) { return s.op, s.elem }
func (s *capStage) Operand() any                              { return s.operand }
func (s *capStage) Downstream() any                           { return s.down }

type panicStage struct{ capStage }

func (s *panicStage) StageKind() (types.OpKind, types.ElemKind) { panic("boom") }

type threshold struct{ Min int }

type scale struct{ factor int }

type withPtr struct{ data *int }

type owner struct{ Fn any }

type linkBase struct{ Downstream any }

type localSink struct {
	linkBase
	Parent *owner
}

type consumerSink struct {
	linkBase
	Consumer any
}

type operatorSink struct {
	linkBase
	Operator any
}

type hiddenSink struct {
	linkBase
	Consumer any
	Operator func(int, int) int
}

func conventionPatterns() []Pattern {
	return []Pattern{
		{Match: MatchSuffix, Tag: "pipeinfo.localSink", Op: types.OpFilter, Elem: types.ElemInt},
		{Match: MatchSuffix, Tag: "pipeinfo.consumerSink", Op: types.OpForEach, Elem: types.ElemInt},
		{Match: MatchSuffix, Tag: "pipeinfo.operatorSink", Op: types.OpReduce, Elem: types.ElemInt},
	}
}

func TestDeduceCapabilityChain(t *testing.T) {
	reduce := &capStage{op: types.OpReduce, elem: types.ElemInt, operand: scale{factor: 1}}
	mapper := &capStage{op: types.OpMap, elem: types.ElemInt, operand: scale{factor: 2}, down: reduce}
	head := &capStage{op: types.OpFilter, elem: types.ElemInt, operand: threshold{Min: 3}, down: mapper}

	d, err := NewWalker(nil, nil).Deduce(head)
	require.NoError(t, err)
	require.Equal(t, 3, d.Len())

	assert.Equal(t, types.OpFilter, d.At(0).Op)
	assert.Equal(t, types.OpMap, d.At(1).Op)
	assert.Equal(t, types.OpReduce, d.At(2).Op)
	assert.Equal(t, threshold{Min: 3}, d.At(0).Operand)
	assert.Equal(t, reflect.TypeOf(scale{}), d.At(1).OperandType)
	assert.Equal(t, "[FILTER/INT -> MAP/INT -> REDUCE/INT]", d.String())
}

func TestDeduceSingleStage(t *testing.T) {
	head := &capStage{op: types.OpFilter, elem: types.ElemInt, operand: threshold{Min: 1}}

	d, err := NewWalker(nil, nil).Deduce(head)
	require.NoError(t, err)
	require.Equal(t, 1, d.Len())
	assert.Equal(t, types.OpFilter, d.At(0).Op)
	assert.Equal(t, types.ElemInt, d.At(0).Elem)
}

func TestDescriptorEqualityIgnoresOperandInstance(t *testing.T) {
	walker := NewWalker(nil, nil)
	a, err := walker.Deduce(&capStage{op: types.OpFilter, elem: types.ElemInt, operand: threshold{Min: 1}})
	require.NoError(t, err)
	b, err := walker.Deduce(&capStage{op: types.OpFilter, elem: types.ElemInt, operand: threshold{Min: 99}})
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.At(0).Operand, b.At(0).Operand)
}

func TestDescriptorEqualityIncludesOperandType(t *testing.T) {
	walker := NewWalker(nil, nil)
	a, err := walker.Deduce(&capStage{op: types.OpMap, elem: types.ElemInt, operand: threshold{Min: 1}})
	require.NoError(t, err)
	b, err := walker.Deduce(&capStage{op: types.OpMap, elem: types.ElemInt, operand: scale{factor: 1}})
	require.NoError(t, err)

	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestDescriptorKeySeparatesPointerFromValue(t *testing.T) {
	walker := NewWalker(nil, nil)
	a, err := walker.Deduce(&capStage{op: types.OpMap, elem: types.ElemInt, operand: threshold{Min: 1}})
	require.NoError(t, err)
	b, err := walker.Deduce(&capStage{op: types.OpMap, elem: types.ElemInt, operand: &threshold{Min: 1}})
	require.NoError(t, err)

	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func sameNamedOperand() any {
	type limit struct{ N int }
	return limit{N: 1}
}

func TestDescriptorKeySeparatesSameNamedTypes(t *testing.T) {
	type limit struct{ N int }
	local, other := limit{N: 1}, sameNamedOperand()
	require.Equal(t, reflect.TypeOf(local).String(), reflect.TypeOf(other).String())

	a := NewDescriptor(NewEntry(types.OpForEach, types.ElemInt).WithOperand(local))
	b := NewDescriptor(NewEntry(types.OpForEach, types.ElemInt).WithOperand(other))
	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Key(), b.Key())

	again := NewDescriptor(NewEntry(types.OpForEach, types.ElemInt).WithOperand(limit{N: 7}))
	assert.True(t, a.Equal(again))
	assert.Equal(t, a.Key(), again.Key())
}

func TestDescriptorEqualityDiffersByLengthAndKind(t *testing.T) {
	one := NewDescriptor(NewEntry(types.OpFilter, types.ElemInt))
	two := NewDescriptor(NewEntry(types.OpFilter, types.ElemInt), NewEntry(types.OpMap, types.ElemInt))
	obj := NewDescriptor(NewEntry(types.OpFilter, types.ElemObject))

	assert.False(t, one.Equal(two))
	assert.False(t, one.Equal(obj))
	assert.True(t, one.Equal(NewDescriptor(NewEntry(types.OpFilter, types.ElemInt))))

	var nilDesc *Descriptor
	assert.True(t, nilDesc.Equal(nil))
	assert.False(t, one.Equal(nil))
}

func TestDescriptorDump(t *testing.T) {
	d := NewDescriptor(NewEntry(types.OpFilter, types.ElemInt).WithOperand(threshold{Min: 4}))
	lines := d.Dump()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Op #1")
	assert.Contains(t, lines[0], "op=FILTER")
	assert.Contains(t, lines[0], "{4}")
}

func TestDeduceUnmatchedStageContinues(t *testing.T) {
	rec := diag.NewRecorder()
	tail := &capStage{op: types.OpReduce, elem: types.ElemInt}
	head := &consumerSink{linkBase: linkBase{Downstream: tail}, Consumer: threshold{}}

	d, err := NewWalker(NewClassifier(rec), rec).Deduce(head)
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())
	assert.Equal(t, types.OpUnknown, d.At(0).Op)
	assert.Equal(t, types.ElemUnknown, d.At(0).Elem)
	assert.Equal(t, types.OpReduce, d.At(1).Op)
	assert.Equal(t, 1, rec.Count(diag.ReasonUnmatchedStage))
}

func TestDeduceUnsupportedContractVersionFallsBackToTag(t *testing.T) {
	rec := diag.NewRecorder()
	head := &capStage{op: types.OpFilter, elem: types.ElemInt, version: types.StageContractVersion + 1}

	d, err := NewWalker(NewClassifier(rec), rec).Deduce(head)
	require.NoError(t, err)
	assert.Equal(t, types.OpUnknown, d.At(0).Op)
	assert.True(t, rec.Has(diag.ReasonUnmatchedStage))
}

func TestDeduceCaptureConventions(t *testing.T) {
	rec := diag.NewRecorder()
	classifier := NewClassifier(rec, conventionPatterns()...)

	reduce := &operatorSink{Operator: scale{factor: 5}}
	each := &consumerSink{linkBase: linkBase{Downstream: reduce}, Consumer: threshold{Min: 2}}
	head := &localSink{linkBase: linkBase{Downstream: each}, Parent: &owner{Fn: threshold{Min: 7}}}

	d, err := NewWalker(classifier, rec).Deduce(head)
	require.NoError(t, err)
	require.Equal(t, 3, d.Len())

	assert.Equal(t, types.OpFilter, d.At(0).Op)
	assert.Equal(t, threshold{Min: 7}, d.At(0).Operand)
	assert.Equal(t, types.OpForEach, d.At(1).Op)
	assert.Equal(t, threshold{Min: 2}, d.At(1).Operand)
	assert.Equal(t, types.OpReduce, d.At(2).Op)
	assert.Equal(t, scale{factor: 5}, d.At(2).Operand)
	assert.False(t, rec.Has(diag.ReasonUnmatchedStage))
	assert.True(t, rec.Has(diag.ReasonPipelineWalked))
}

func TestDeduceMissingOperandWarns(t *testing.T) {
	rec := diag.NewRecorder()
	classifier := NewClassifier(rec, conventionPatterns()...)

	d, err := NewWalker(classifier, rec).Deduce(&operatorSink{})
	require.NoError(t, err)
	assert.Nil(t, d.At(0).Operand)
	assert.Nil(t, d.At(0).OperandType)
	assert.True(t, rec.Has(diag.ReasonOperandNotFound))
}

func TestDeduceNilParentAborts(t *testing.T) {
	rec := diag.NewRecorder()
	classifier := NewClassifier(rec, conventionPatterns()...)

	d, err := NewWalker(classifier, rec).Deduce(&localSink{})
	assert.Nil(t, d)
	assert.ErrorIs(t, err, types.ErrUndeducible)
	assert.True(t, rec.Has(diag.ReasonUndeducible))
}

func TestDeduceNilHead(t *testing.T) {
	_, err := NewWalker(nil, nil).Deduce(nil)
	assert.ErrorIs(t, err, types.ErrUndeducible)

	var typedNil *capStage
	_, err = NewWalker(nil, nil).Deduce(typedNil)
	assert.ErrorIs(t, err, types.ErrUndeducible)
}

func TestDeduceCycleHitsMaxDepth(t *testing.T) {
	loop := &capStage{op: types.OpMap, elem: types.ElemInt}
	loop.down = loop

	_, err := NewWalker(nil, nil, WithMaxDepth(8)).Deduce(loop)
	assert.ErrorIs(t, err, types.ErrUndeducible)
	assert.Contains(t, err.Error(), "8 stages")
}

func TestDeduceRecoversPanic(t *testing.T) {
	rec := diag.NewRecorder()
	stage := &panicStage{capStage{op: types.OpFilter, elem: types.ElemInt}}

	var err error
	assert.NotPanics(t, func() {
		_, err = NewWalker(nil, rec).Deduce(stage)
	})
	assert.ErrorIs(t, err, types.ErrUndeducible)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, rec.Has(diag.ReasonUndeducible))
}

func TestHiddenSinkPrefersConsumer(t *testing.T) {
	head := &hiddenSink{Consumer: threshold{Min: 1}, Operator: func(a, b int) int { return a + b }}

	d, err := NewWalker(nil, nil).Deduce(head)
	require.NoError(t, err)
	assert.Equal(t, threshold{Min: 1}, d.At(0).Operand)
}

func TestClassifierMatchKinds(t *testing.T) {
	c := NewClassifier(nil,
		Pattern{Match: MatchExact, Tag: "a.exact", Op: types.OpReduce, Elem: types.ElemInt},
		Pattern{Match: MatchPrefix, Tag: "pre.", Op: types.OpFilter, Elem: types.ElemObject},
		Pattern{Match: MatchSuffix, Tag: ".suf", Op: types.OpMap, Elem: types.ElemInt},
		Pattern{Match: MatchContains, Tag: "mid", Op: types.OpForEach, Elem: types.ElemUnknown},
	)

	tests := []struct {
		tag  string
		op   types.OpKind
		elem types.ElemKind
	}{
		{"a.exact", types.OpReduce, types.ElemInt},
		{"a.exact.more", types.OpUnknown, types.ElemUnknown},
		{"pre.thing", types.OpFilter, types.ElemObject},
		{"thing.suf", types.OpMap, types.ElemInt},
		{"xmidx", types.OpForEach, types.ElemUnknown},
		{"nothing", types.OpUnknown, types.ElemUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			op, elem := c.ClassifyTag(tt.tag)
			assert.Equal(t, tt.op, op)
			assert.Equal(t, tt.elem, elem)
		})
	}
}

func TestClassifierRegisterAppends(t *testing.T) {
	c := NewClassifier(nil, Pattern{Match: MatchContains, Tag: "x", Op: types.OpMap, Elem: types.ElemInt})
	c.Register(Pattern{Match: MatchExact, Tag: "xy", Op: types.OpFilter, Elem: types.ElemInt})
	c.Register(Pattern{Match: MatchExact, Tag: "zz", Op: types.OpPeek, Elem: types.ElemInt})

	op, _ := c.ClassifyTag("xy")
	assert.Equal(t, types.OpMap, op, "earlier patterns win")
	op, _ = c.ClassifyTag("zz")
	assert.Equal(t, types.OpPeek, op)
}

func TestDefaultPatternsAreCopied(t *testing.T) {
	c := NewClassifier(nil)
	c.Register(Pattern{Match: MatchExact, Tag: "extra", Op: types.OpMap, Elem: types.ElemInt})
	assert.Len(t, DefaultPatterns, 9)
}

func TestTagOf(t *testing.T) {
	assert.Equal(t, "<nil>", TagOf(nil))
	assert.Equal(t, "github.com/jzx17/pipeoffload/pkg/pipeinfo.threshold", TagOf(threshold{}))
	assert.Equal(t, "github.com/jzx17/pipeoffload/pkg/pipeinfo.threshold", TagOf(&threshold{}))
	assert.Equal(t, "int", TagOf(1))
}

func TestFieldValues(t *testing.T) {
	values, err := FieldValues(scale{factor: 3})
	require.NoError(t, err)
	assert.Equal(t, []any{3}, values)

	values, err = FieldValues(&threshold{Min: 9})
	require.NoError(t, err)
	assert.Equal(t, []any{9}, values)

	values, err = FieldValues(func(int) bool { return true })
	require.NoError(t, err)
	assert.Empty(t, values)

	n := 1
	_, err = FieldValues(withPtr{data: &n})
	assert.ErrorIs(t, err, ErrFieldAccess)
}

func TestFieldByPrefix(t *testing.T) {
	v, found, err := FieldByPrefix(&owner{Fn: 5}, "Fn")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5, v)

	_, found, err = FieldByPrefix(&owner{}, "Missing")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = FieldByPrefix(42, "Fn")
	require.NoError(t, err)
	assert.False(t, found)
}
