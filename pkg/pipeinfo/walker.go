package pipeinfo

import (
	"fmt"
	"reflect"

	pkgerrors "github.com/pkg/errors"

	"github.com/jzx17/pipeoffload/pkg/diag"
	"github.com/jzx17/pipeoffload/pkg/types"
)

// DefaultMaxDepth bounds the number of stages a walk will follow
const DefaultMaxDepth = 64

// Capture conventions used to locate the operand of a stage that does not carry it explicitly.
const (
	// FieldParent names the field holding the owning pipeline object of a stage-local sink
	FieldParent = "Parent"
	// FieldFn names the operand field on that owning object
	FieldFn = "Fn"
	// FieldConsumer names the operand field of a terminal consumer stage
	FieldConsumer = "Consumer"
	// FieldOperator names the operand field of a reduction stage
	FieldOperator = "Operator"
	// FieldDownstream names the link to the next stage on the embedded base struct
	FieldDownstream = "Downstream"
)

// Walker deduces pipeline descriptors from sink chains
type Walker struct {
	classifier *Classifier
	sink       diag.Sink
	maxDepth   int
}

// WithMaxDepth sets the longest chain a walk will follow
func WithMaxDepth(n int) types.Option[*Walker] {
	return func(w *Walker) {
		if n > 0 {
			w.maxDepth = n
		}
	}
}

// NewWalker creates a walker. A nil classifier uses the default pattern table.
func NewWalker(classifier *Classifier, sink diag.Sink, opts ...types.Option[*Walker]) *Walker {
	if sink == nil {
		sink = diag.Discard
	}
	if classifier == nil {
		classifier = NewClassifier(sink)
	}
	w := &Walker{
		classifier: classifier,
		sink:       sink,
		maxDepth:   DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Deduce walks the chain starting at head and returns its descriptor.
// Any failure to follow the chain aborts the walk with ErrUndeducible.
func (w *Walker) Deduce(head any) (d *Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = pkgerrors.WithStack(fmt.Errorf("%w: panic while walking: %v", types.ErrUndeducible, r))
		}
		if err != nil {
			w.sink.Record(diag.Event{
				Severity: diag.SeverityWarn,
				Reason:   diag.ReasonUndeducible,
				Message:  "pipeline shape could not be deduced",
				StageTag: TagOf(head),
				Err:      err,
			})
		}
	}()

	if isNil(head) {
		return nil, fmt.Errorf("%w: nil sink", types.ErrUndeducible)
	}

	var entries []Entry
	for stage := head; !isNil(stage); {
		if len(entries) >= w.maxDepth {
			return nil, fmt.Errorf("%w: chain longer than %d stages", types.ErrUndeducible, w.maxDepth)
		}

		op, elem := w.classifier.Classify(stage)
		entry := NewEntry(op, elem)

		operand, err := w.operandOf(stage)
		if err != nil {
			return nil, fmt.Errorf("%w: stage %d (%s): %v", types.ErrUndeducible, len(entries), TagOf(stage), err)
		}
		if operand != nil {
			entry = entry.WithOperand(operand)
		} else if op != types.OpUnknown {
			w.sink.Record(diag.Event{
				Severity: diag.SeverityWarn,
				Reason:   diag.ReasonOperandNotFound,
				Message:  "no operand found for stage",
				StageTag: TagOf(stage),
			})
		}
		entries = append(entries, entry)

		next, err := w.next(stage)
		if err != nil {
			return nil, fmt.Errorf("%w: stage %d (%s): %v", types.ErrUndeducible, len(entries)-1, TagOf(stage), err)
		}
		stage = next
	}

	d = NewDescriptor(entries...)
	w.sink.Record(diag.Event{
		Severity:  diag.SeverityDebug,
		Reason:    diag.ReasonPipelineWalked,
		Message:   "pipeline walked",
		Shape:     d.String(),
		ShapeHash: d.Hash(),
	})
	return d, nil
}

// operandOf locates the user operand of a stage. A nil operand with a nil error means none was found.
func (w *Walker) operandOf(stage any) (any, error) {
	if c, ok := stage.(types.OperandCarrier); ok && supportsContract(stage) {
		return c.Operand(), nil
	}

	parent, found, err := FieldByPrefix(stage, FieldParent)
	if err != nil {
		return nil, err
	}
	if found {
		if isNil(parent) {
			return nil, fmt.Errorf("nil %s field", FieldParent)
		}
		fn, found, err := FieldByPrefix(parent, FieldFn)
		if err != nil || found {
			return nilIfNil(fn), err
		}
	}

	for _, prefix := range []string{FieldConsumer, FieldOperator} {
		v, found, err := FieldByPrefix(stage, prefix)
		if err != nil {
			return nil, err
		}
		if found {
			return nilIfNil(v), nil
		}
	}
	return nil, nil
}

// next returns the downstream stage, or nil at the terminal
func (w *Walker) next(stage any) (any, error) {
	if l, ok := stage.(types.Linked); ok && supportsContract(stage) {
		return nilIfNil(l.Downstream()), nil
	}

	v, ok := structValue(stage)
	if !ok {
		return nil, nil
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.Anonymous {
			continue
		}
		base := v.Field(i)
		if base.Kind() == reflect.Pointer {
			if base.IsNil() {
				continue
			}
			base = base.Elem()
		}
		if base.Kind() != reflect.Struct {
			continue
		}
		j, found := fieldIndexByPrefix(base.Type(), FieldDownstream)
		if !found {
			continue
		}
		next, err := FieldValue(base, j)
		if err != nil {
			return nil, err
		}
		return nilIfNil(next), nil
	}
	return nil, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func nilIfNil(v any) any {
	if isNil(v) {
		return nil
	}
	return v
}
