package main

import "github.com/banshee-data/cdctrack/internal/monitoring"

const logPrefix = "[cdctrack] "

func opsf(format string, args ...interface{}) {
	monitoring.Opsf(logPrefix, format, args...)
}

func diagf(format string, args ...interface{}) {
	monitoring.Diagf(logPrefix, format, args...)
}
