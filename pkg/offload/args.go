package offload

import (
	"fmt"

	"github.com/jzx17/pipeoffload/pkg/pipeinfo"
	"github.com/jzx17/pipeoffload/pkg/types"
)

// fieldArray is the field read from sources that implement neither storage interface
const fieldArray = "Array"

// appendKernelArgs appends the operand's fields in declared order, then the source storage.
// Zero-based ranges pass no storage: the work-item id is the element.
func appendKernelArgs(dst []any, operand any, src types.Source) ([]any, error) {
	fields, err := pipeinfo.FieldValues(operand)
	if err != nil {
		return dst, err
	}
	dst = append(dst, fields...)

	if src.Kind() == types.SourceRange {
		return dst, nil
	}
	storage, err := backingStorage(src)
	if err != nil {
		return dst, err
	}
	return append(dst, storage), nil
}

func backingStorage(src types.Source) (any, error) {
	switch s := src.(type) {
	case types.ArrayBacked:
		return s.BackingArray(), nil
	case types.CollectionBacked:
		c := s.Collection()
		if c == nil {
			return nil, fmt.Errorf("%s source has a nil collection", src.Kind())
		}
		return c.Storage(), nil
	}

	v, found, err := pipeinfo.FieldByPrefix(src, fieldArray)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%T exposes no backing storage", src)
	}
	return v, nil
}

// intElements returns the []int behind an int-array source
func intElements(src types.Source) ([]int, bool) {
	storage, err := backingStorage(src)
	if err != nil {
		return nil, false
	}
	elems, ok := storage.([]int)
	return elems, ok
}
