// Package offload decides, per terminal operation, whether a parallel pipeline runs as an
// accelerator kernel or falls back to baseline evaluation.
//
// The dispatcher deduces the pipeline shape, consults the kernel cache, compiles at most once
// per shape, marshals kernel arguments and invokes the executor. Every recognition,
// compilation, linkage or eligibility failure is recovered and reported as a revert: the
// caller runs the baseline instead. In strict mode a revert is returned as a
// *types.StrictModeError.
package offload

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jzx17/pipeoffload/internal/logger"
	"github.com/jzx17/pipeoffload/pkg/config"
	"github.com/jzx17/pipeoffload/pkg/diag"
	"github.com/jzx17/pipeoffload/pkg/pipeinfo"
	"github.com/jzx17/pipeoffload/pkg/types"
)

// Operation names used in diagnostics and metrics
const (
	OpForEach = "forEach"
	OpReduce  = "reduce"
)

// LinkageGuidance is reported whenever the accelerator runtime cannot be linked
const LinkageGuidance = "check the accelerator toolchain is on PATH and LD_LIBRARY_PATH"

// Stats is a snapshot of dispatcher counters
type Stats struct {
	Dispatches      int64
	Offloaded       int64
	Reverted        int64
	Compiles        int64
	CompileFailures int64
	CacheHits       int64
	CacheSize       int
}

type counters struct {
	dispatches      atomic.Int64
	offloaded       atomic.Int64
	reverted        atomic.Int64
	compiles        atomic.Int64
	compileFailures atomic.Int64
	cacheHits       atomic.Int64
}

// Dispatcher owns a kernel cache and the collaborators used to fill and run it
type Dispatcher struct {
	compiler    types.Compiler
	executor    types.Executor
	classifier  *pipeinfo.Classifier
	walker      *pipeinfo.Walker
	cache       *Cache
	capacity    int
	sink        diag.Sink
	meter       metric.Meter
	metrics     *Metrics
	tracer      trace.Tracer
	clock       types.Clock
	neverRevert func() bool
	newID       func() string

	flights singleflight.Group
	args    *types.ArgsPool
	stats   counters
}

// Option configures a Dispatcher
type Option = types.Option[*Dispatcher]

// WithCompiler sets the kernel compiler
func WithCompiler(c types.Compiler) Option {
	return func(d *Dispatcher) { d.compiler = c }
}

// WithExecutor sets the kernel executor
func WithExecutor(e types.Executor) Option {
	return func(d *Dispatcher) { d.executor = e }
}

// WithDiagnostics sets where diagnostic events go
func WithDiagnostics(sink diag.Sink) Option {
	return func(d *Dispatcher) { d.sink = sink }
}

// WithClassifier replaces the default stage classifier
func WithClassifier(c *pipeinfo.Classifier) Option {
	return func(d *Dispatcher) { d.classifier = c }
}

// WithMeter sets the meter used for dispatch metrics
func WithMeter(m metric.Meter) Option {
	return func(d *Dispatcher) { d.meter = m }
}

// WithTracer sets the tracer that records one span per dispatch
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithClock sets the clock used to time compilations
func WithClock(c types.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithCapacity bounds the kernel cache
func WithCapacity(n int) Option {
	return func(d *Dispatcher) { d.capacity = n }
}

// WithNeverRevert fixes strict mode on or off for this dispatcher
func WithNeverRevert(on bool) Option {
	return func(d *Dispatcher) { d.neverRevert = func() bool { return on } }
}

// WithSwitches reads strict mode from s on every dispatch
func WithSwitches(s *config.Switches) Option {
	return func(d *Dispatcher) { d.neverRevert = s.NeverRevert }
}

// New creates a dispatcher. Without a compiler or executor every dispatch reverts.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clock: types.NewRealClock(),
		newID: uuid.NewString,
		args:  types.NewArgsPool(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sink == nil {
		d.sink = diag.NewLogSink(logger.Global().WithComponent("offload").Zerolog())
	}
	if d.classifier == nil {
		d.classifier = pipeinfo.NewClassifier(d.sink)
	}
	if d.neverRevert == nil {
		d.neverRevert = config.Global().NeverRevert
	}
	d.walker = pipeinfo.NewWalker(d.classifier, d.sink)
	d.cache = NewCache(d.capacity)
	d.metrics = defaultMetrics(d.meter)
	if d.tracer == nil {
		d.tracer = otel.Tracer(instrumentationName)
	}
	return d
}

// Cache exposes the kernel cache
func (d *Dispatcher) Cache() *Cache {
	return d.cache
}

// Classifier exposes the stage classifier so callers can register patterns
func (d *Dispatcher) Classifier() *pipeinfo.Classifier {
	return d.classifier
}

// Stats returns a snapshot of the dispatcher counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatches:      d.stats.dispatches.Load(),
		Offloaded:       d.stats.offloaded.Load(),
		Reverted:        d.stats.reverted.Load(),
		Compiles:        d.stats.compiles.Load(),
		CompileFailures: d.stats.compileFailures.Load(),
		CacheHits:       d.stats.cacheHits.Load(),
		CacheSize:       d.cache.Len(),
	}
}

// ReduceTargetName returns the reduction implemented by operator, or "" when the compiler
// cannot tell
func (d *Dispatcher) ReduceTargetName(operator any) string {
	if d.compiler == nil {
		return ""
	}
	return d.compiler.ReduceTargetName(operator)
}

// dispatchCall carries the state of one dispatch for diagnostics
type dispatchCall struct {
	op   string
	id   string
	desc *pipeinfo.Descriptor
	span trace.Span
}

// executionError marks a failure of an already marshalled kernel invocation
type executionError struct {
	err error
}

func (e *executionError) Error() string { return e.err.Error() }

func (e *executionError) Unwrap() error { return e.err }

// ForEach tries to run a forEach pipeline as a kernel and otherwise runs op on the baseline path
func (d *Dispatcher) ForEach(ctx context.Context, src types.Source, helper types.PipelineHelper, sink any, op types.ForEachOp) error {
	ctx, call := d.begin(ctx, OpForEach)
	err := d.tryForEach(ctx, call, src, sink)
	if err == nil {
		d.offloaded(ctx, call)
		return nil
	}
	var execErr *executionError
	if errors.As(err, &execErr) {
		d.metrics.RecordDispatch(ctx, call.op, "error")
		d.finish(call, "error", execErr.err)
		return execErr.err
	}
	if strictErr := d.revert(ctx, call, err); strictErr != nil {
		return strictErr
	}
	if op == nil {
		return fmt.Errorf("forEach has no baseline: %w", err)
	}
	return op.EvaluateBaseline(ctx, helper, src)
}

// ReduceInt tries to run an integer reduction as a kernel. offloaded is false when the caller
// must evaluate the reduction itself. An empty reducerName is resolved through the compiler.
func (d *Dispatcher) ReduceInt(ctx context.Context, src types.Source, helper types.PipelineHelper, sink any,
	operator any, reducerName string, identity int) (result int, offloaded bool, err error) {
	ctx, call := d.begin(ctx, OpReduce)
	result, err = d.tryReduceInt(ctx, call, src, sink, operator, reducerName, identity)
	if err == nil {
		d.offloaded(ctx, call)
		return result, true, nil
	}
	var execErr *executionError
	if errors.As(err, &execErr) {
		d.metrics.RecordDispatch(ctx, call.op, "error")
		d.finish(call, "error", execErr.err)
		return 0, false, execErr.err
	}
	if strictErr := d.revert(ctx, call, err); strictErr != nil {
		return 0, false, strictErr
	}
	return 0, false, nil
}

func (d *Dispatcher) tryForEach(ctx context.Context, call *dispatchCall, src types.Source, sink any) (err error) {
	defer d.recoverInto(call, &err)

	if err := d.checkCollaborators(); err != nil {
		return err
	}
	if !Eligible(src) {
		return fmt.Errorf("%w: %s", types.ErrIneligibleSource, kindOf(src))
	}
	desc, err := d.shape(call, sink)
	if err != nil {
		return err
	}

	operandType := desc.At(0).OperandType
	handle, err := d.kernelFor(ctx, call, func() (types.KernelHandle, error) {
		return d.compiler.CompileKernel(operandType)
	})
	if err != nil {
		return err
	}

	argsPtr := d.args.Get()
	defer d.args.Put(argsPtr)
	args, err := appendKernelArgs(*argsPtr, desc.At(0).Operand, src)
	*argsPtr = args
	if err != nil {
		d.cache.MarkFailed(desc)
		return fmt.Errorf("%w: %w", types.ErrMarshal, err)
	}

	err = guardExecute(func() error {
		return d.executor.Dispatch(ctx, handle, int(src.EstimateSize()), args)
	})
	return d.executed(desc, err)
}

func (d *Dispatcher) tryReduceInt(ctx context.Context, call *dispatchCall, src types.Source, sink any,
	operator any, reducerName string, identity int) (result int, err error) {
	defer d.recoverInto(call, &err)

	if err := d.checkCollaborators(); err != nil {
		return 0, err
	}
	if !Eligible(src) {
		return 0, fmt.Errorf("%w: %s", types.ErrIneligibleSource, kindOf(src))
	}
	if _, err := d.shape(call, sink); err != nil {
		return 0, err
	}

	handle, err := d.kernelFor(ctx, call, func() (types.KernelHandle, error) {
		name := reducerName
		if name == "" {
			name = d.compiler.ReduceTargetName(operator)
		}
		if name == "" {
			return nil, nil
		}
		source, err := d.compiler.ReductionSource(name)
		if err != nil {
			return nil, err
		}
		return d.compiler.CreateKernel(source, name)
	})
	if err != nil {
		return 0, err
	}

	elems, ok := intElements(src)
	if !ok {
		return 0, fmt.Errorf("%w: %s source has no int storage", types.ErrMarshal, kindOf(src))
	}

	err = guardExecute(func() error {
		var execErr error
		result, execErr = d.executor.ReduceInt(ctx, handle, identity, elems)
		return execErr
	})
	if err = d.executed(call.desc, err); err != nil {
		return 0, err
	}
	return result, nil
}

func (d *Dispatcher) checkCollaborators() error {
	if d.compiler == nil || d.executor == nil {
		return fmt.Errorf("%w: no accelerator configured", types.ErrLinkage)
	}
	return nil
}

// shape deduces the descriptor and applies the size gate
func (d *Dispatcher) shape(call *dispatchCall, sink any) (*pipeinfo.Descriptor, error) {
	desc, err := d.walker.Deduce(sink)
	if err != nil {
		return nil, err
	}
	call.desc = desc
	if desc.Len() != 1 {
		return nil, fmt.Errorf("%w: %d stages", types.ErrPipelineTooLarge, desc.Len())
	}
	return desc, nil
}

// kernelFor returns the cached kernel for the shape of call.desc, compiling it on first use.
// Concurrent first uses of one shape share a single compilation.
func (d *Dispatcher) kernelFor(ctx context.Context, call *dispatchCall, compile func() (types.KernelHandle, error)) (types.KernelHandle, error) {
	desc := call.desc
	if h, ok, err := d.cached(desc); ok {
		if err != nil {
			d.record(call, diag.SeverityDebug, diag.ReasonKnownBadShape, "shape failed to compile before", err)
			return nil, err
		}
		d.stats.cacheHits.Add(1)
		return h, nil
	}

	v, err, _ := d.flights.Do(desc.Key(), func() (any, error) {
		if h, ok, err := d.cached(desc); ok {
			return h, err
		}

		start := d.clock.Now()
		h, err := guardCompile(compile)
		elapsed := d.clock.Since(start)
		d.stats.compiles.Add(1)

		switch {
		case err != nil:
			d.cache.MarkFailed(desc)
			d.stats.compileFailures.Add(1)
			d.metrics.RecordCompile(ctx, "failed", elapsed)
			d.record(call, diag.SeverityWarn, diag.ReasonCompileFailed, "kernel compilation failed", err)
			return nil, fmt.Errorf("%w: %w", types.ErrCompileFailed, err)
		case h == nil:
			d.cache.MarkFailed(desc)
			d.stats.compileFailures.Add(1)
			d.metrics.RecordCompile(ctx, "unavailable", elapsed)
			d.record(call, diag.SeverityWarn, diag.ReasonKernelUnavailable, "no kernel for pipeline shape", nil)
			return nil, types.ErrKernelUnavailable
		default:
			d.cache.Install(desc, h)
			d.metrics.RecordCompile(ctx, "compiled", elapsed)
			d.record(call, diag.SeverityInfo, diag.ReasonKernelCompiled, "kernel compiled", nil)
			return h, nil
		}
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// cached reports a settled outcome for desc; ok is false while it is unattempted
func (d *Dispatcher) cached(desc *pipeinfo.Descriptor) (types.KernelHandle, bool, error) {
	switch outcome, h := d.cache.Lookup(desc); outcome {
	case Compiled:
		return h, true, nil
	case FailedPermanently:
		return nil, true, fmt.Errorf("%w: shape %s failed before", types.ErrKernelUnavailable, desc)
	default:
		return nil, false, nil
	}
}

func guardCompile(compile func() (types.KernelHandle, error)) (h types.KernelHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h = nil
			err = pkgerrors.WithStack(fmt.Errorf("compiler panic: %v", r))
		}
	}()
	return compile()
}

// guardExecute runs a kernel invocation. A panic from the executor becomes an execution error:
// the kernel may already have run part of the work, so the baseline must not run again.
func guardExecute(run func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &executionError{err: pkgerrors.WithStack(fmt.Errorf("executor panic: %v", r))}
		}
	}()
	return run()
}

// executed classifies the outcome of a kernel invocation. Linkage failures revert and mark the
// shape failed like a compile failure; any other error is an execution error.
func (d *Dispatcher) executed(desc *pipeinfo.Descriptor, err error) error {
	var execErr *executionError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &execErr):
		return err
	case errors.Is(err, types.ErrLinkage):
		d.cache.MarkFailed(desc)
		return err
	default:
		return &executionError{err: err}
	}
}

func (d *Dispatcher) recoverInto(call *dispatchCall, err *error) {
	r := recover()
	if r == nil {
		return
	}
	if call.desc != nil {
		d.cache.MarkFailed(call.desc)
	}
	*err = pkgerrors.WithStack(fmt.Errorf("collaborator panic: %v", r))
}

func (d *Dispatcher) begin(ctx context.Context, op string) (context.Context, *dispatchCall) {
	d.stats.dispatches.Add(1)
	call := &dispatchCall{op: op, id: d.newID()}
	ctx, call.span = d.tracer.Start(ctx, "offload."+op,
		trace.WithAttributes(attribute.String("offload.dispatch_id", call.id)))
	return ctx, call
}

// finish ends the dispatch span. The baseline, if any, runs after it.
func (d *Dispatcher) finish(call *dispatchCall, result string, err error, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String("offload.result", result))
	if call.desc != nil {
		attrs = append(attrs, attribute.String("offload.shape", call.desc.String()))
	}
	call.span.SetAttributes(attrs...)
	if err != nil {
		call.span.RecordError(err)
		call.span.SetStatus(codes.Error, err.Error())
	}
	call.span.End()
}

func (d *Dispatcher) offloaded(ctx context.Context, call *dispatchCall) {
	d.stats.offloaded.Add(1)
	d.metrics.RecordDispatch(ctx, call.op, "offloaded")
	d.record(call, diag.SeverityDebug, diag.ReasonOffloaded, "pipeline offloaded", nil)
	d.finish(call, "offloaded", nil)
}

// revert reports a fallback. In strict mode it returns the error to hand to the caller instead.
func (d *Dispatcher) revert(ctx context.Context, call *dispatchCall, cause error) error {
	reason := revertReason(cause)
	if reason == diag.ReasonLinkage {
		d.record(call, diag.SeverityError, diag.ReasonLinkage, LinkageGuidance, cause)
	}

	shape := ""
	if call.desc != nil {
		shape = call.desc.String()
	}
	if d.neverRevert() {
		d.metrics.RecordDispatch(ctx, call.op, "strict_violation")
		d.record(call, diag.SeverityError, diag.ReasonStrictViolation, "revert refused in strict mode", cause)
		strictErr := types.NewStrictModeError(call.op, shape, cause)
		d.finish(call, "strict_violation", strictErr, attribute.String("offload.reason", string(reason)))
		return strictErr
	}

	d.stats.reverted.Add(1)
	d.metrics.RecordDispatch(ctx, call.op, "reverted")
	d.metrics.RecordRevert(ctx, call.op, string(reason))
	d.record(call, diag.SeverityWarn, diag.ReasonReverted, "reverting to baseline: "+string(reason), cause)
	d.finish(call, "reverted", nil, attribute.String("offload.reason", string(reason)))
	return nil
}

func (d *Dispatcher) record(call *dispatchCall, sev diag.Severity, reason diag.Reason, msg string, err error) {
	e := diag.Event{
		Time:       d.clock.Now(),
		Severity:   sev,
		Reason:     reason,
		Message:    msg,
		Operation:  call.op,
		DispatchID: call.id,
		Err:        err,
	}
	if call.desc != nil {
		e.Shape = call.desc.String()
		e.ShapeHash = call.desc.Hash()
	}
	d.sink.Record(e)
}

// revertReason maps a failure onto the diagnostic reason reported with the revert
func revertReason(err error) diag.Reason {
	switch {
	case errors.Is(err, types.ErrLinkage):
		return diag.ReasonLinkage
	case errors.Is(err, types.ErrUndeducible):
		return diag.ReasonUndeducible
	case errors.Is(err, types.ErrPipelineTooLarge):
		return diag.ReasonPipelineTooLarge
	case errors.Is(err, types.ErrIneligibleSource):
		return diag.ReasonIneligibleSource
	case errors.Is(err, types.ErrCompileFailed):
		return diag.ReasonCompileFailed
	case errors.Is(err, types.ErrKernelUnavailable):
		return diag.ReasonKernelUnavailable
	case errors.Is(err, types.ErrMarshal):
		return diag.ReasonMarshalFailed
	default:
		return diag.ReasonReverted
	}
}

func kindOf(src types.Source) string {
	if src == nil {
		return "nil"
	}
	return src.Kind().String()
}
