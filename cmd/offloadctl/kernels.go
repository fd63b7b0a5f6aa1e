package main

import (
	"fmt"
	"sync/atomic"

	"github.com/jzx17/pipeoffload/pkg/accel/host"
)

// squareInto stores v*v at Out[v]. Used over zero-based ranges, where element and index agree.
type squareInto struct {
	Out []int
}

func (s squareInto) Accept(v int) { s.Out[v] = v * v }

// weightedTotal adds Factor*v to Total for every element
type weightedTotal struct {
	Factor int
	Total  *atomic.Int64
}

func (w weightedTotal) Accept(v int) { w.Total.Add(int64(w.Factor * v)) }

// countInto counts the elements it sees. No kernel is registered for it.
type countInto struct {
	N *atomic.Int64
}

func (c countInto) Accept(int) { c.N.Add(1) }

func registerKernels(acc *host.Accelerator) {
	host.RegisterFor[squareInto](acc, func(args []any) (func(int), error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("squareInto: want 1 argument, got %d", len(args))
		}
		out, ok := args[0].([]int)
		if !ok {
			return nil, fmt.Errorf("squareInto: Out is %T", args[0])
		}
		return func(gid int) { out[gid] = gid * gid }, nil
	})

	host.RegisterFor[weightedTotal](acc, func(args []any) (func(int), error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("weightedTotal: want 3 arguments, got %d", len(args))
		}
		factor, ok1 := args[0].(int)
		total, ok2 := args[1].(*atomic.Int64)
		in, ok3 := args[2].([]int)
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("weightedTotal: unexpected arguments %T, %T, %T", args[0], args[1], args[2])
		}
		return func(gid int) { total.Add(int64(factor * in[gid])) }, nil
	})
}
