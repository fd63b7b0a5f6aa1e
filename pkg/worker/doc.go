/*
Package worker provides the fixed-size worker pool used for baseline parallel evaluation and
by the host accelerator.

A Pool runs a fixed number of Worker goroutines reading from a buffered task queue. Workers
recover task panics and report them as *types.TaskError carrying the worker id and stack.

ParallelFor splits an index space into contiguous chunks, runs one task per chunk on a
short-lived pool and returns the first chunk error:

	err := worker.ParallelFor(ctx, 4, len(data), func(ctx context.Context, lo, hi int) error {
		for i := lo; i < hi; i++ {
			process(data[i])
		}
		return nil
	})
*/
package worker
