package pipeline

import "github.com/banshee-data/cdctrack/internal/monitoring"

const logPrefix = "[pipeline] "

// opsf logs to the ops stream (actionable warnings, errors, data loss).
func opsf(format string, args ...interface{}) {
	monitoring.Opsf(logPrefix, format, args...)
}

// diagf logs to the diag stream (per-event stage counts).
func diagf(format string, args ...interface{}) {
	monitoring.Diagf(logPrefix, format, args...)
}
