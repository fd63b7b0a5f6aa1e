package pipeline

import (
	"context"
	"runtime"

	"github.com/jzx17/pipeoffload/pkg/config"
	"github.com/jzx17/pipeoffload/pkg/offload"
	"github.com/jzx17/pipeoffload/pkg/worker"
)

// cancelCheckInterval is how many elements are pushed between context checks
const cancelCheckInterval = 1024

// Env is the execution environment of parallel streams
type Env struct {
	// Dispatcher decides whether eligible pipelines run as kernels; nil uses offload.Default()
	Dispatcher *offload.Dispatcher

	// Switches holds the offload switch; nil uses config.Global()
	Switches *config.Switches

	// Workers is the number of chunks parallel baseline evaluation uses; 0 means GOMAXPROCS
	Workers int
}

var defaultEnv = &Env{}

// DefaultEnv returns the environment used by streams without one
func DefaultEnv() *Env {
	return defaultEnv
}

func (e *Env) dispatcher() *offload.Dispatcher {
	if e.Dispatcher != nil {
		return e.Dispatcher
	}
	return offload.Default()
}

func (e *Env) offloadEnabled() bool {
	if e.Switches != nil {
		return e.Switches.Offload()
	}
	return config.Global().Offload()
}

func (e *Env) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// wiring builds the stage sinks in front of down. It returns the head of the chain and a
// function pushing source element i into it.
type wiring[T any] func(down sink[T]) (head any, feed func(i int))

// evaluate pushes every source element through the chain. Parallel evaluation splits the
// source into chunks, each with its own terminal from newTerminal. Terminals are returned in
// source order.
func evaluate[T any, S sink[T]](ctx context.Context, env *Env, wire wiring[T], n int, parallel bool,
	newTerminal func() S) ([]S, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !parallel {
		term := newTerminal()
		_, feed := wire(term)
		if err := drain(ctx, feed, 0, n); err != nil {
			return nil, err
		}
		return []S{term}, nil
	}

	chunks := worker.Chunks(n, env.workers())
	terms := make([]S, len(chunks))
	err := worker.ParallelFor(ctx, len(chunks), len(chunks), func(ctx context.Context, lo, hi int) error {
		for c := lo; c < hi; c++ {
			term := newTerminal()
			terms[c] = term
			_, feed := wire(term)
			if err := drain(ctx, feed, chunks[c].Lo, chunks[c].Hi); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return terms, nil
}

func drain(ctx context.Context, feed func(i int), lo, hi int) error {
	for i := lo; i < hi; i++ {
		if (i-lo)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		feed(i)
	}
	return nil
}
