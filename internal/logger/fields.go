package logger

import "time"

// Standard field keys.
const (
	FieldComponent  = "component"
	FieldOperation  = "op"
	FieldShape      = "shape"
	FieldDispatchID = "dispatch_id"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
)

// Fields builds a map from alternating key-value pairs.
//
//	log.Info("offloaded", logger.Fields("op", "reduce", "count", 42))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldDuration:  d.Milliseconds(),
	}
}
