package l6tracks

import "github.com/banshee-data/cdctrack/internal/monitoring"

const logPrefix = "[l6tracks] "

func diagf(format string, args ...interface{}) {
	monitoring.Diagf(logPrefix, format, args...)
}

func tracef(format string, args ...interface{}) {
	monitoring.Tracef(logPrefix, format, args...)
}
