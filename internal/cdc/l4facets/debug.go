package l4facets

import "github.com/banshee-data/cdctrack/internal/monitoring"

const logPrefix = "[l4facets] "

func diagf(format string, args ...interface{}) {
	monitoring.Diagf(logPrefix, format, args...)
}

func tracef(format string, args ...interface{}) {
	monitoring.Tracef(logPrefix, format, args...)
}
