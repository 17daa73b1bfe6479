package report

import "github.com/banshee-data/cdctrack/internal/monitoring"

const logPrefix = "[report] "

func diagf(format string, args ...interface{}) {
	monitoring.Diagf(logPrefix, format, args...)
}
