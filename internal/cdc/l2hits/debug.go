package l2hits

import "github.com/banshee-data/cdctrack/internal/monitoring"

const logPrefix = "[l2hits] "

// diagf logs to the diag stream (per-event counts).
func diagf(format string, args ...interface{}) {
	monitoring.Diagf(logPrefix, format, args...)
}

// tracef logs to the trace stream (per-hit chatter).
func tracef(format string, args ...interface{}) {
	monitoring.Tracef(logPrefix, format, args...)
}
