package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// RangeFunc processes the half-open index range [lo, hi)
type RangeFunc func(ctx context.Context, lo, hi int) error

// Chunk is a half-open index range
type Chunk struct {
	Lo, Hi int
}

// Chunks splits [0, n) into at most parts contiguous ranges of near-equal length
func Chunks(n, parts int) []Chunk {
	if n <= 0 {
		return nil
	}
	if parts <= 0 {
		parts = 1
	}
	if parts > n {
		parts = n
	}
	chunks := make([]Chunk, 0, parts)
	size, rem := n/parts, n%parts
	lo := 0
	for i := 0; i < parts; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		chunks = append(chunks, Chunk{Lo: lo, Hi: hi})
		lo = hi
	}
	return chunks
}

// ParallelFor runs fn over [0, n) split across workers goroutines of a short-lived pool.
// workers <= 0 uses GOMAXPROCS. The first failing chunk cancels the others' context and its
// error is returned; a panicking chunk is reported as *types.TaskError.
func ParallelFor(ctx context.Context, workers, n int, fn RangeFunc) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunks := Chunks(n, workers)
	if len(chunks) == 1 {
		return runInline(ctx, n, fn)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := NewPool(&Config{Size: len(chunks), QueueSize: len(chunks)})
	if err != nil {
		return err
	}
	// Workers must drain every queued chunk so the wait below completes; cancellation
	// reaches chunks through runCtx instead.
	if err := pool.Start(context.Background()); err != nil {
		return err
	}
	defer pool.Close()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, c := range chunks {
		wg.Add(1)
		task := NewBasicTaskWithID(fmt.Sprintf("chunk-%d", i), func(context.Context) (err error) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err = panicError(fmt.Sprintf("chunk-%d", i), r)
				}
				if err != nil {
					fail(err)
				}
			}()
			if err := runCtx.Err(); err != nil {
				return err
			}
			return fn(runCtx, c.Lo, c.Hi)
		})
		if err := pool.SubmitWithTimeout(task, 0); err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()
	return firstErr
}

// runInline runs a single chunk on the calling goroutine with the same panic handling as pooled chunks
func runInline(ctx context.Context, n int, fn RangeFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError("chunk-0", r)
		}
	}()
	return fn(ctx, 0, n)
}
