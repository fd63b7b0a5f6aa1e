package pipeinfo

import (
	"reflect"
	"strings"
	"sync"

	"github.com/jzx17/pipeoffload/pkg/diag"
	"github.com/jzx17/pipeoffload/pkg/types"
)

// MatchKind selects how a Pattern compares its tag
type MatchKind int

const (
	// MatchExact requires the whole tag to be equal
	MatchExact MatchKind = iota
	// MatchPrefix requires the tag to start with the pattern
	MatchPrefix
	// MatchSuffix requires the tag to end with the pattern
	MatchSuffix
	// MatchContains requires the pattern anywhere in the tag
	MatchContains
)

// Pattern maps a family of stage tags to an operation and element kind
type Pattern struct {
	Match MatchKind
	Tag   string
	Op    types.OpKind
	Elem  types.ElemKind
}

func (p Pattern) matches(tag string) bool {
	switch p.Match {
	case MatchExact:
		return tag == p.Tag
	case MatchPrefix:
		return strings.HasPrefix(tag, p.Tag)
	case MatchSuffix:
		return strings.HasSuffix(tag, p.Tag)
	case MatchContains:
		return strings.Contains(tag, p.Tag)
	default:
		return false
	}
}

const pipelinePkg = "github.com/jzx17/pipeoffload/pkg/pipeline."

// DefaultPatterns covers the sink types of the pipeline package.
// Order matters: the first matching pattern wins.
var DefaultPatterns = []Pattern{
	{Match: MatchExact, Tag: pipelinePkg + "intReduceSink", Op: types.OpReduce, Elem: types.ElemInt},
	{Match: MatchSuffix, Tag: "pipeline.intFilterSink", Op: types.OpFilter, Elem: types.ElemInt},
	{Match: MatchSuffix, Tag: "pipeline.intMapSink", Op: types.OpMap, Elem: types.ElemInt},
	{Match: MatchSuffix, Tag: "pipeline.intPeekSink", Op: types.OpPeek, Elem: types.ElemInt},
	{Match: MatchSuffix, Tag: "pipeline.intForEachSink", Op: types.OpForEach, Elem: types.ElemInt},
	{Match: MatchPrefix, Tag: pipelinePkg + "filterSink[", Op: types.OpFilter, Elem: types.ElemObject},
	{Match: MatchPrefix, Tag: pipelinePkg + "mapSink[", Op: types.OpMap, Elem: types.ElemObject},
	{Match: MatchPrefix, Tag: pipelinePkg + "peekSink[", Op: types.OpPeek, Elem: types.ElemObject},
	{Match: MatchContains, Tag: "forEachSink[", Op: types.OpForEach, Elem: types.ElemUnknown},
}

// TagOf returns the structural identity tag of a stage: its package path and type name
func TagOf(stage any) string {
	if stage == nil {
		return "<nil>"
	}
	return typeName(reflect.TypeOf(stage))
}

// typeName renders a type with its full package path so equal names from different packages differ
func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	if t.Kind() == reflect.Pointer {
		return typeName(t.Elem())
	}
	return t.String()
}

// Classifier maps stages to (operation, element) kinds
type Classifier struct {
	mu       sync.RWMutex
	patterns []Pattern
	sink     diag.Sink
}

// NewClassifier creates a classifier using patterns, or DefaultPatterns when none are given
func NewClassifier(sink diag.Sink, patterns ...Pattern) *Classifier {
	if sink == nil {
		sink = diag.Discard
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	table := make([]Pattern, len(patterns))
	copy(table, patterns)
	return &Classifier{patterns: table, sink: sink}
}

// Register appends patterns to the table. They match after the existing ones.
func (c *Classifier) Register(patterns ...Pattern) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns = append(c.patterns, patterns...)
}

// ClassifyTag matches tag against the pattern table.
// Unmatched tags yield (OpUnknown, ElemUnknown) and a warning event.
func (c *Classifier) ClassifyTag(tag string) (types.OpKind, types.ElemKind) {
	c.mu.RLock()
	for _, p := range c.patterns {
		if p.matches(tag) {
			c.mu.RUnlock()
			return p.Op, p.Elem
		}
	}
	c.mu.RUnlock()

	c.sink.Record(diag.Event{
		Severity: diag.SeverityWarn,
		Reason:   diag.ReasonUnmatchedStage,
		Message:  "unmatched stage type",
		StageTag: tag,
		Err:      types.ErrUnrecognizedStage,
	})
	return types.OpUnknown, types.ElemUnknown
}

// Classify reports the kinds of a stage. Stages implementing a supported version of the
// stage contract describe themselves; everything else is matched by tag.
func (c *Classifier) Classify(stage any) (types.OpKind, types.ElemKind) {
	if d, ok := stage.(types.Describer); ok && supportsContract(stage) {
		return d.StageKind()
	}
	return c.ClassifyTag(TagOf(stage))
}

func supportsContract(stage any) bool {
	v, ok := stage.(types.Versioned)
	return ok && v.ContractVersion() == types.StageContractVersion
}
