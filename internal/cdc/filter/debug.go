package filter

import "github.com/banshee-data/cdctrack/internal/monitoring"

const logPrefix = "[filter] "

// opsf logs to the ops stream (actionable warnings, lost records).
func opsf(format string, args ...interface{}) {
	monitoring.Opsf(logPrefix, format, args...)
}
