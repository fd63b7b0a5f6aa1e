package offload

import "github.com/jzx17/pipeoffload/pkg/types"

// Eligible reports whether a source has a representation the accelerator can read directly:
// slices, owning collections, and integer ranges starting at zero.
func Eligible(src types.Source) bool {
	if src == nil {
		return false
	}
	switch src.Kind() {
	case types.SourceArray, types.SourceIntArray, types.SourceList, types.SourceSyncList:
		return true
	case types.SourceRange:
		b, ok := src.(types.Bounded)
		if !ok {
			return false
		}
		from, _ := b.Bounds()
		return from == 0
	default:
		return false
	}
}
