// Package diag provides structured diagnostics for pipeline recognition and offload dispatch.
//
// Every recoverable failure on the accelerated path is reported as an Event carrying a
// severity, a machine-readable Reason and the identity of the pipeline shape involved,
// so callers and tests can assert on why a pipeline reverted without parsing log text.
package diag

import (
	"sync"
	"time"
)

// Severity ranks diagnostic events
type Severity int

const (
	// SeverityDebug is used for tracing recognized pipelines
	SeverityDebug Severity = iota
	// SeverityInfo is used for successful offload milestones
	SeverityInfo
	// SeverityWarn is used for recoverable failures that cause a revert
	SeverityWarn
	// SeverityError is used for collaborator failures and strict mode violations
	SeverityError
)

// String returns string representation of severity
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Reason is a machine-readable diagnostic code
type Reason string

const (
	ReasonUnmatchedStage    Reason = "unmatched_stage"
	ReasonOperandNotFound   Reason = "operand_not_found"
	ReasonUndeducible       Reason = "pipeline_undeducible"
	ReasonPipelineWalked    Reason = "pipeline_walked"
	ReasonPipelineTooLarge  Reason = "pipeline_too_large"
	ReasonIneligibleSource  Reason = "ineligible_source"
	ReasonKernelCompiled    Reason = "kernel_compiled"
	ReasonKernelUnavailable Reason = "kernel_unavailable"
	ReasonCompileFailed     Reason = "compile_failed"
	ReasonLinkage           Reason = "linkage_failed"
	ReasonKnownBadShape     Reason = "known_bad_shape"
	ReasonMarshalFailed     Reason = "marshal_failed"
	ReasonOffloaded         Reason = "offloaded"
	ReasonReverted          Reason = "reverted"
	ReasonStrictViolation   Reason = "strict_violation"
)

// Event is one structured diagnostic record
type Event struct {
	Time       time.Time
	Severity   Severity
	Reason     Reason
	Message    string
	Operation  string
	Shape      string
	ShapeHash  uint64
	StageTag   string
	DispatchID string
	Err        error
}

// Sink receives diagnostic events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(Event)

// Record calls f(e)
func (f SinkFunc) Record(e Event) {
	f(e)
}

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans events out to several sinks
func Multi(sinks ...Sink) Sink {
	active := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range active {
			s.Record(e)
		}
	})
}

// Recorder keeps events in memory
type Recorder struct {
	mu     sync.RWMutex
	events []Event
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record implements Sink
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of all recorded events
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events carry reason
func (r *Recorder) Count(reason Reason) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.events {
		if e.Reason == reason {
			n++
		}
	}
	return n
}

// Has reports whether any event carries reason
func (r *Recorder) Has(reason Reason) bool {
	return r.Count(reason) > 0
}

// Reset drops all recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
