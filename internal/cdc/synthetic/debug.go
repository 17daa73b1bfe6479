package synthetic

import "github.com/banshee-data/cdctrack/internal/monitoring"

const logPrefix = "[synthetic] "

func tracef(format string, args ...interface{}) {
	monitoring.Tracef(logPrefix, format, args...)
}
