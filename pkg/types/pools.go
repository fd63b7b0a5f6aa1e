// Package types provides object pools for performance optimization
package types

import (
	"sync"
)

// ArgsPool manages kernel argument lists to reduce allocations on the dispatch path
type ArgsPool struct {
	pool sync.Pool
}

// NewArgsPool creates a new argument list pool
func NewArgsPool() *ArgsPool {
	return &ArgsPool{
		pool: sync.Pool{
			New: func() interface{} {
				args := make([]any, 0, 8)
				return &args
			},
		},
	}
}

// Get retrieves an empty argument list from the pool or creates a new one
func (ap *ArgsPool) Get() *[]any {
	return ap.pool.Get().(*[]any)
}

// Put returns an argument list to the pool after clearing it
func (ap *ArgsPool) Put(args *[]any) {
	if args == nil {
		return
	}
	// Drop references so pooled lists do not pin kernel operands
	clear(*args)
	*args = (*args)[:0]
	ap.pool.Put(args)
}
