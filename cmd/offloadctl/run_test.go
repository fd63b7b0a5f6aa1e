package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/pipeoffload/internal/logger"
	"github.com/jzx17/pipeoffload/pkg/config"
	"github.com/jzx17/pipeoffload/pkg/offload"
)

func quietRun(t *testing.T, opts runOptions) (string, error) {
	t.Helper()
	prev := logger.Global()
	logger.SetGlobal(logger.Nop())
	t.Cleanup(func() { logger.SetGlobal(prev) })

	var out bytes.Buffer
	err := run(context.Background(), &out, config.Default(), opts)
	return out.String(), err
}

func TestRunReportsEveryPath(t *testing.T) {
	out, err := quietRun(t, runOptions{size: 64, repeat: 2, workers: 2, offload: true})
	require.NoError(t, err)

	assert.Contains(t, out, "kernel")
	assert.Contains(t, out, "baseline (reverted)")
	assert.Contains(t, out, "baseline (not dispatched)")
	assert.Contains(t, out, "sum=2016")
	assert.Contains(t, out, "max=63")
	assert.Contains(t, out, "count=32")
	assert.Contains(t, out, "[FOREACH/INT]")
	assert.Contains(t, out, "offload.dispatch.total")
	assert.Contains(t, out, "offload.compile.duration")
}

func TestRunWithoutAccelerator(t *testing.T) {
	out, err := quietRun(t, runOptions{size: 16, repeat: 1, workers: 2, offload: true, noAccel: true})
	require.NoError(t, err, "linkage failures revert")
	assert.Contains(t, out, "baseline (reverted)")
	assert.Contains(t, out, "linkage")
}

func TestRunStrictFails(t *testing.T) {
	out, err := quietRun(t, runOptions{size: 16, repeat: 1, workers: 2, offload: true, strict: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 pipeline runs failed")
	assert.Contains(t, out, "strict_mode error")
}

func TestRunRejectsBadOptions(t *testing.T) {
	_, err := quietRun(t, runOptions{size: -1, repeat: 1})
	assert.Error(t, err)
	_, err = quietRun(t, runOptions{size: 1, repeat: 0})
	assert.Error(t, err)
}

func TestPathTaken(t *testing.T) {
	base := offload.Stats{Dispatches: 3, Offloaded: 1, Reverted: 2}
	tests := []struct {
		name  string
		after offload.Stats
		want  string
	}{
		{"skipped", base, "baseline (not dispatched)"},
		{"kernel", offload.Stats{Dispatches: 4, Offloaded: 2, Reverted: 2}, "kernel"},
		{"reverted", offload.Stats{Dispatches: 4, Offloaded: 1, Reverted: 3}, "baseline (reverted)"},
		{"strict", offload.Stats{Dispatches: 4, Offloaded: 1, Reverted: 2}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pathTaken(base, tt.after))
		})
	}
}
