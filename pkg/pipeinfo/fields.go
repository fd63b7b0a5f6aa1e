package pipeinfo

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrFieldAccess indicates a field was found but its value could not be read
var ErrFieldAccess = errors.New("field not accessible")

// structValue dereferences pointers and interfaces down to a struct value
func structValue(obj any) (reflect.Value, bool) {
	v := reflect.ValueOf(obj)
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	return v, true
}

// fieldIndexByPrefix returns the index of the first declared field whose name starts with prefix
func fieldIndexByPrefix(t reflect.Type, prefix string) (int, bool) {
	for i := 0; i < t.NumField(); i++ {
		if strings.HasPrefix(t.Field(i).Name, prefix) {
			return i, true
		}
	}
	return -1, false
}

// FieldValue reads field i of struct value v.
// Scalar fields are read through typed accessors so unexported scalars stay reachable;
// any other field must be exported.
func FieldValue(v reflect.Value, i int) (any, error) {
	f := v.Field(i)
	sf := v.Type().Field(i)
	switch f.Kind() {
	case reflect.Bool:
		return f.Bool(), nil
	case reflect.Int:
		return int(f.Int()), nil
	case reflect.Int8:
		return int8(f.Int()), nil
	case reflect.Int16:
		return int16(f.Int()), nil
	case reflect.Int32:
		return int32(f.Int()), nil
	case reflect.Int64:
		return f.Int(), nil
	case reflect.Uint:
		return uint(f.Uint()), nil
	case reflect.Uint8:
		return uint8(f.Uint()), nil
	case reflect.Uint16:
		return uint16(f.Uint()), nil
	case reflect.Uint32:
		return uint32(f.Uint()), nil
	case reflect.Uint64:
		return f.Uint(), nil
	case reflect.Float32:
		return float32(f.Float()), nil
	case reflect.Float64:
		return f.Float(), nil
	case reflect.String:
		return f.String(), nil
	}
	if !f.CanInterface() {
		return nil, fmt.Errorf("%w: %s.%s", ErrFieldAccess, v.Type(), sf.Name)
	}
	return f.Interface(), nil
}

// FieldValues returns every field of obj in declared order.
// Non-struct values have no fields.
func FieldValues(obj any) ([]any, error) {
	v, ok := structValue(obj)
	if !ok {
		return nil, nil
	}
	values := make([]any, 0, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		val, err := FieldValue(v, i)
		if err != nil {
			return nil, err
		}
		values = append(values, val)
	}
	return values, nil
}

// FieldByPrefix reads the first field of obj whose name starts with prefix.
// found is false when obj is not a struct or has no such field.
func FieldByPrefix(obj any, prefix string) (value any, found bool, err error) {
	v, ok := structValue(obj)
	if !ok {
		return nil, false, nil
	}
	i, ok := fieldIndexByPrefix(v.Type(), prefix)
	if !ok {
		return nil, false, nil
	}
	value, err = FieldValue(v, i)
	return value, true, err
}
