package display

import "github.com/banshee-data/cdctrack/internal/monitoring"

const logPrefix = "[display] "

func diagf(format string, args ...interface{}) {
	monitoring.Diagf(logPrefix, format, args...)
}
