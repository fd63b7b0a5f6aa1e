// Package pipeinfo recovers the canonical shape of a pipeline from its sink chain.
//
// A Descriptor is an ordered list of Entries, one per stage. Descriptors compare and hash
// by stage shape only: the captured operand instance is carried along for kernel argument
// marshalling but never takes part in equality, so pipelines that differ only in captured
// values share one kernel cache entry.
package pipeinfo

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/jzx17/pipeoffload/pkg/types"
)

// Entry describes one recognized stage
type Entry struct {
	Op          types.OpKind
	Elem        types.ElemKind
	OperandType reflect.Type
	Operand     any
}

// NewEntry creates an entry with its operation and element kind set together
func NewEntry(op types.OpKind, elem types.ElemKind) Entry {
	return Entry{Op: op, Elem: elem}
}

// WithOperand returns a copy of e carrying operand and its declared type
func (e Entry) WithOperand(operand any) Entry {
	e.Operand = operand
	if operand != nil {
		e.OperandType = reflect.TypeOf(operand)
	}
	return e
}

// Equal compares kinds and operand type, ignoring the operand instance
func (e Entry) Equal(other Entry) bool {
	return e.Op == other.Op && e.Elem == other.Elem && e.OperandType == other.OperandType
}

func (e Entry) key() string {
	return e.Op.String() + "/" + e.Elem.String() + "/" + typeKey(e.OperandType)
}

// typeIDs numbers every operand type seen by this process. Two distinct reflect.Types never
// share an ID, even when their printed names match.
var (
	typeIDs    sync.Map // reflect.Type -> uint64
	nextTypeID atomic.Uint64
)

func typeKey(t reflect.Type) string {
	if t == nil {
		return "<nil>#0"
	}
	id, ok := typeIDs.Load(t)
	if !ok {
		id, _ = typeIDs.LoadOrStore(t, nextTypeID.Add(1))
	}
	return t.String() + "#" + strconv.FormatUint(id.(uint64), 10)
}

func (e Entry) String() string {
	return fmt.Sprintf("op=%s, elem=%s, operand=%v", e.Op, e.Elem, e.Operand)
}

// Descriptor is the canonical, immutable shape of a walked pipeline
type Descriptor struct {
	entries []Entry
	key     string
	hash    uint64
}

// NewDescriptor creates a descriptor from entries in pipeline order
func NewDescriptor(entries ...Entry) *Descriptor {
	d := &Descriptor{entries: make([]Entry, len(entries))}
	copy(d.entries, entries)

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.key()
	}
	d.key = "[" + strings.Join(parts, " | ") + "]"
	d.hash = xxhash.Sum64String(d.key)
	return d
}

// Len returns the number of stages
func (d *Descriptor) Len() int {
	return len(d.entries)
}

// At returns the i-th stage
func (d *Descriptor) At(i int) Entry {
	return d.entries[i]
}

// Entries returns a copy of all stages
func (d *Descriptor) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Equal reports whether both descriptors have equal stage sequences
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.entries) != len(other.entries) {
		return false
	}
	for i := range d.entries {
		if !d.entries[i].Equal(other.entries[i]) {
			return false
		}
	}
	return true
}

// Key returns the canonical comparable form of the shape.
// Equal descriptors have equal keys.
func (d *Descriptor) Key() string {
	return d.key
}

// Hash returns a 64-bit hash of Key
func (d *Descriptor) Hash() uint64 {
	return d.hash
}

// String returns the shape without operand values
func (d *Descriptor) String() string {
	parts := make([]string, len(d.entries))
	for i, e := range d.entries {
		parts[i] = e.Op.String() + "/" + e.Elem.String()
	}
	return "[" + strings.Join(parts, " -> ") + "]"
}

// Dump renders every stage, operand included, one line per stage
func (d *Descriptor) Dump() []string {
	lines := make([]string, len(d.entries))
	for i, e := range d.entries {
		lines[i] = fmt.Sprintf("Op #%d, %s", i+1, e)
	}
	return lines
}
