package types

// OpKind identifies the operation a pipeline stage performs
type OpKind int

const (
	// OpUnknown is reported for stages that could not be recognized
	OpUnknown OpKind = iota
	// OpFilter keeps elements matching a predicate
	OpFilter
	// OpMap transforms each element
	OpMap
	// OpPeek observes each element without changing it
	OpPeek
	// OpForEach consumes each element (terminal)
	OpForEach
	// OpReduce folds all elements into one value (terminal)
	OpReduce
)

// String returns string representation of the operation kind
func (k OpKind) String() string {
	switch k {
	case OpFilter:
		return "FILTER"
	case OpMap:
		return "MAP"
	case OpPeek:
		return "PEEK"
	case OpForEach:
		return "FOREACH"
	case OpReduce:
		return "REDUCE"
	default:
		return "UNKNOWN"
	}
}

// ElemKind identifies the kind of elements flowing through a stage
type ElemKind int

const (
	// ElemUnknown is reported when the element kind could not be determined
	ElemUnknown ElemKind = iota
	// ElemInt marks stages over primitive int elements
	ElemInt
	// ElemObject marks stages over arbitrary values
	ElemObject
)

// String returns string representation of the element kind
func (k ElemKind) String() string {
	switch k {
	case ElemInt:
		return "INT"
	case ElemObject:
		return "OBJ"
	default:
		return "UNKNOWN"
	}
}

// SourceKind identifies the internal representation of a pipeline source
type SourceKind int

const (
	// SourceUnknown is any source with no declared representation
	SourceUnknown SourceKind = iota
	// SourceArray is backed by a generic slice
	SourceArray
	// SourceIntArray is backed by a []int
	SourceIntArray
	// SourceList is backed by a growable list's internal storage
	SourceList
	// SourceSyncList is backed by a synchronized list's internal storage
	SourceSyncList
	// SourceRange is a contiguous integer range
	SourceRange
	// SourceGenerator produces elements on demand
	SourceGenerator
)

// String returns string representation of the source kind
func (k SourceKind) String() string {
	switch k {
	case SourceArray:
		return "array"
	case SourceIntArray:
		return "int-array"
	case SourceList:
		return "list"
	case SourceSyncList:
		return "sync-list"
	case SourceRange:
		return "range"
	case SourceGenerator:
		return "generator"
	default:
		return "unknown"
	}
}
