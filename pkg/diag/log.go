package diag

import (
	"strconv"

	"github.com/rs/zerolog"
)

// LogSink writes events as structured zerolog records
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record implements Sink
func (s *LogSink) Record(e Event) {
	var event *zerolog.Event
	switch e.Severity {
	case SeverityDebug:
		event = s.logger.Debug()
	case SeverityInfo:
		event = s.logger.Info()
	case SeverityWarn:
		event = s.logger.Warn()
	default:
		event = s.logger.Error()
	}
	if event == nil {
		return
	}

	event = event.Str("reason", string(e.Reason))
	if e.Operation != "" {
		event = event.Str("op", e.Operation)
	}
	if e.Shape != "" {
		event = event.Str("shape", e.Shape).
			Str("shape_hash", strconv.FormatUint(e.ShapeHash, 16))
	}
	if e.StageTag != "" {
		event = event.Str("stage_tag", e.StageTag)
	}
	if e.DispatchID != "" {
		event = event.Str("dispatch_id", e.DispatchID)
	}
	if e.Err != nil {
		event = event.Stack().Err(e.Err)
	}
	if !e.Time.IsZero() {
		event = event.Time("at", e.Time)
	}
	event.Msg(e.Message)
}
