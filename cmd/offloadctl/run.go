package main

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"text/tabwriter"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	offloaderrors "github.com/jzx17/pipeoffload/internal/errors"
	"github.com/jzx17/pipeoffload/internal/logger"
	"github.com/jzx17/pipeoffload/pkg/accel/host"
	"github.com/jzx17/pipeoffload/pkg/config"
	"github.com/jzx17/pipeoffload/pkg/diag"
	"github.com/jzx17/pipeoffload/pkg/offload"
	"github.com/jzx17/pipeoffload/pkg/pipeline"
)

type runOptions struct {
	size    int
	repeat  int
	workers int
	offload bool
	strict  bool
	noAccel bool
}

// sample is one pipeline the run command executes
type sample struct {
	name string
	run  func(ctx context.Context, env *pipeline.Env, size int) (string, error)
}

func runCmd(flags *globalFlags) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sample pipelines and report offload decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().IntVar(&opts.size, "size", 100_000, "number of elements per pipeline")
	cmd.Flags().IntVar(&opts.repeat, "repeat", 2, "how many times each pipeline runs")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "worker goroutines; 0 uses the config value")
	cmd.Flags().BoolVar(&opts.offload, "offload", true, "try the accelerator for eligible pipelines")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail instead of reverting to baseline evaluation")
	cmd.Flags().BoolVar(&opts.noAccel, "no-accel", false, "simulate a missing accelerator runtime")
	return cmd
}

func run(ctx context.Context, out io.Writer, cfg *config.Config, opts runOptions) error {
	if opts.size < 0 || opts.repeat < 1 {
		return fmt.Errorf("size must be >= 0 and repeat >= 1")
	}
	workers := cfg.Workers
	if opts.workers > 0 {
		workers = opts.workers
	}

	switches := config.NewSwitches(cfg)
	switches.SetOffload(opts.offload)
	if opts.strict {
		switches.SetNeverRevert(true)
	}

	log := logger.Global()
	acc := host.New(host.WithWorkers(workers), host.WithLogger(log.WithComponent("accel.host")))
	registerKernels(acc)
	acc.SetAvailable(!opts.noAccel)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	recorder := diag.NewRecorder()
	dispatcher := offload.New(
		offload.WithCompiler(acc),
		offload.WithExecutor(acc),
		offload.WithCapacity(cfg.CacheCapacity),
		offload.WithSwitches(switches),
		offload.WithMeter(provider.Meter("offloadctl")),
		offload.WithDiagnostics(diag.Multi(
			diag.NewLogSink(log.WithComponent("offload").Zerolog()),
			recorder,
		)),
	)
	env := &pipeline.Env{Dispatcher: dispatcher, Switches: switches, Workers: workers}

	failures := offloaderrors.NewTally()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PIPELINE\tRUN\tPATH\tRESULT")
	for _, s := range samples() {
		for i := 1; i <= opts.repeat; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			before := dispatcher.Stats()
			result, err := s.run(ctx, env, opts.size)
			path := pathTaken(before, dispatcher.Stats())
			if err != nil {
				category := failures.Add(err)
				result = fmt.Sprintf("%s error: %v", category, err)
				log.Error("pipeline failed", err, logger.Fields("pipeline", s.name, "category", category.String()))
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.name, i, path, result)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	if err := printStats(out, dispatcher, acc); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err := printCache(out, dispatcher.Cache()); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err := printReverts(out, recorder); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err := printMetrics(ctx, out, reader); err != nil {
		return err
	}

	var fatal int
	for _, c := range failures.Categories() {
		if !c.Recoverable() {
			fatal += failures.Count(c)
		}
	}
	if fatal > 0 {
		return fmt.Errorf("%d pipeline runs failed", fatal)
	}
	return nil
}

// pathTaken describes how the dispatcher handled a run from its counters
func pathTaken(before, after offload.Stats) string {
	switch {
	case after.Dispatches == before.Dispatches:
		return "baseline (not dispatched)"
	case after.Offloaded > before.Offloaded:
		return "kernel"
	case after.Reverted > before.Reverted:
		return "baseline (reverted)"
	default:
		return "failed"
	}
}

func samples() []sample {
	return []sample{
		{
			name: "squares: range.forEach",
			run: func(ctx context.Context, env *pipeline.Env, size int) (string, error) {
				out := make([]int, size)
				err := pipeline.Range(0, size).WithEnv(env).Parallel().ForEach(ctx, squareInto{Out: out})
				if err != nil || size == 0 {
					return "", err
				}
				return fmt.Sprintf("out[%d]=%d", size-1, out[size-1]), nil
			},
		},
		{
			name: "weighted: ints.forEach",
			run: func(ctx context.Context, env *pipeline.Env, size int) (string, error) {
				var total atomic.Int64
				err := pipeline.OfInts(sequence(size)...).WithEnv(env).Parallel().
					ForEach(ctx, weightedTotal{Factor: 3, Total: &total})
				return fmt.Sprintf("total=%d", total.Load()), err
			},
		},
		{
			name: "sum: ints.reduce",
			run: func(ctx context.Context, env *pipeline.Env, size int) (string, error) {
				sum, err := pipeline.OfInts(sequence(size)...).WithEnv(env).Parallel().Sum(ctx)
				return fmt.Sprintf("sum=%d", sum), err
			},
		},
		{
			name: "max: list.reduce",
			run: func(ctx context.Context, env *pipeline.Env, size int) (string, error) {
				list := pipeline.NewList(sequence(size)...)
				largest, err := pipeline.FromIntList(list).WithEnv(env).Parallel().Reduce(ctx, minInt, pipeline.IntMax{})
				return fmt.Sprintf("max=%d", largest), err
			},
		},
		{
			name: "evens: range.filter.forEach",
			run: func(ctx context.Context, env *pipeline.Env, size int) (string, error) {
				var n atomic.Int64
				err := pipeline.Range(0, size).WithEnv(env).Parallel().
					Filter(pipeline.IntPredicateFunc(func(v int) bool { return v%2 == 0 })).
					ForEach(ctx, countInto{N: &n})
				return fmt.Sprintf("count=%d", n.Load()), err
			},
		},
		{
			name: "generated: generate.forEach",
			run: func(ctx context.Context, env *pipeline.Env, size int) (string, error) {
				var n atomic.Int64
				err := pipeline.GenerateInts(size, func(i int) int { return i }).WithEnv(env).Parallel().
					ForEach(ctx, countInto{N: &n})
				return fmt.Sprintf("count=%d", n.Load()), err
			},
		},
	}
}

const minInt = -1 << 63

func sequence(n int) []int {
	xs := make([]int, n)
	for i := range xs {
		xs[i] = i
	}
	return xs
}
