package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LevelFatal sits above slog.LevelError.
const LevelFatal = slog.Level(12)

var (
	level   = new(slog.LevelVar)
	current atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelInfo)
	Configure(os.Stderr, "text")
}

// Configure replaces the output handler. format is "json" or "text".
func Configure(w io.Writer, format string) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lv, ok := a.Value.Any().(slog.Level); ok && lv >= LevelFatal {
					a.Value = slog.StringValue("FATAL")
				}
			}
			return a
		},
	}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	current.Store(slog.New(h))
}

// SetLogLevel sets the minimum level. Unknown names fall back to INFO.
func SetLogLevel(name string) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARN", "WARNING":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	case "FATAL":
		level.Set(LevelFatal)
	default:
		level.Set(slog.LevelInfo)
		Warnf("unknown log level %q, continuing with INFO", name)
	}
}

// L returns the process logger.
func L() *slog.Logger {
	return current.Load()
}

// With returns the process logger with attrs attached.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

func logf(lv slog.Level, format string, v ...interface{}) {
	l := L()
	if !l.Enabled(context.Background(), lv) {
		return
	}
	l.Log(context.Background(), lv, fmt.Sprintf(format, v...))
}

// Debugf logs at DEBUG.
func Debugf(format string, v ...interface{}) { logf(slog.LevelDebug, format, v...) }

// Infof logs at INFO.
func Infof(format string, v ...interface{}) { logf(slog.LevelInfo, format, v...) }

// Warnf logs at WARN.
func Warnf(format string, v ...interface{}) { logf(slog.LevelWarn, format, v...) }

// Errorf logs at ERROR.
func Errorf(format string, v ...interface{}) { logf(slog.LevelError, format, v...) }

// Fatalf logs at FATAL and exits the process.
func Fatalf(format string, v ...interface{}) {
	logf(LevelFatal, format, v...)
	os.Exit(1)
}
