package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	loggerMu sync.RWMutex
	logger   = NewLogger(os.Stderr, log.InfoLevel)
)

// Logf is the package-level diagnostic logger. It defaults to the shared
// leveled logger at info level but may be replaced by SetLogger. Tests or
// production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = func(format string, v ...interface{}) {
	Logger().Infof(format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// NewLogger creates a leveled logger writing to w with short timestamps.
func NewLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// Logger returns the shared leveled logger used by the ops/diag/trace streams.
func Logger() *log.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetOutput replaces the shared leveled logger. A nil writer mutes all streams.
func SetOutput(w io.Writer, level log.Level) {
	if w == nil {
		w = io.Discard
	}
	l := NewLogger(w, level)
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// ParseLevel maps a level name (debug, info, warn, error) to a log level.
func ParseLevel(name string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return log.DebugLevel, nil
	case "info", "":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	}
	return log.InfoLevel, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", name)
}

// Opsf logs to the ops stream (actionable warnings: broken cycles, dropped input).
func Opsf(prefix, format string, args ...interface{}) {
	l := Logger()
	if l.GetLevel() > log.WarnLevel {
		return
	}
	l.Warn(prefix + fmt.Sprintf(format, args...))
}

// Diagf logs to the diag stream (per-event stage counts, tuning context).
func Diagf(prefix, format string, args ...interface{}) {
	l := Logger()
	if l.GetLevel() > log.InfoLevel {
		return
	}
	l.Info(prefix + fmt.Sprintf(format, args...))
}

// Tracef logs to the trace stream (per-object telemetry).
func Tracef(prefix, format string, args ...interface{}) {
	l := Logger()
	if l.GetLevel() > log.DebugLevel {
		return
	}
	l.Debug(prefix + fmt.Sprintf(format, args...))
}
