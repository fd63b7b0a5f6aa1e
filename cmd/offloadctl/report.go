package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	offloaderrors "github.com/jzx17/pipeoffload/internal/errors"
	"github.com/jzx17/pipeoffload/pkg/accel/host"
	"github.com/jzx17/pipeoffload/pkg/diag"
	"github.com/jzx17/pipeoffload/pkg/offload"
)

func printStats(out io.Writer, d *offload.Dispatcher, acc *host.Accelerator) error {
	s := d.Stats()
	a := acc.Stats()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DISPATCHES\tOFFLOADED\tREVERTED\tCOMPILES\tCOMPILE FAILURES\tCACHE HITS\tCACHE SIZE")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		s.Dispatches, s.Offloaded, s.Reverted, s.Compiles, s.CompileFailures, s.CacheHits, s.CacheSize)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "KERNELS\tLAUNCHES\tWORK ITEMS\tREDUCTIONS")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", a.Kernels, a.Dispatches, a.WorkItems, a.Reductions)
	return tw.Flush()
}

func printCache(out io.Writer, c *offload.Cache) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SHAPE\tHASH\tOUTCOME\tKERNEL")
	for _, e := range c.Snapshot() {
		kernel := "-"
		if e.Handle != nil {
			kernel = fmt.Sprint(e.Handle)
		}
		fmt.Fprintf(tw, "%s\t%016x\t%s\t%s\n", e.Descriptor, e.Descriptor.Hash(), e.Outcome, kernel)
	}
	return tw.Flush()
}

// printReverts groups the revert causes seen by the dispatcher by error category
func printReverts(out io.Writer, rec *diag.Recorder) error {
	tally := offloaderrors.NewTally()
	for _, e := range rec.Events() {
		if e.Reason == diag.ReasonReverted {
			tally.Add(e.Err)
		}
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REVERT CATEGORY\tCOUNT\tRECOVERABLE")
	for _, c := range tally.Categories() {
		fmt.Fprintf(tw, "%s\t%d\t%t\n", c, tally.Count(c), c.Recoverable())
	}
	if len(tally.Categories()) == 0 {
		fmt.Fprintln(tw, "none\t0\t-")
	}
	return tw.Flush()
}

func printMetrics(ctx context.Context, out io.Writer, reader *sdkmetric.ManualReader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collecting metrics: %w", err)
	}

	enc := attribute.DefaultEncoder()
	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s\t%s\t%d", m.Name, dp.Attributes.Encoded(enc), dp.Value))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s\t%s\tcount=%d sum=%.6fs",
						m.Name, dp.Attributes.Encoded(enc), dp.Count, dp.Sum))
				}
			}
		}
	}
	sort.Strings(lines)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tATTRIBUTES\tVALUE")
	for _, l := range lines {
		fmt.Fprintln(tw, l)
	}
	return tw.Flush()
}
