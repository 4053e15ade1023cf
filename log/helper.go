// Package log provides the logging facade used across hive.
// It wraps the Kratos logging system and provides convenient methods for different log levels.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Level represents the logging level.
type Level int32

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual human review.
	WarnLevel
	// ErrorLevel logs are high-priority.
	ErrorLevel
)

// ParseLevel maps a config string onto a Level. Unknown names yield InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) kratos() log.Level {
	switch l {
	case DebugLevel:
		return log.LevelDebug
	case WarnLevel:
		return log.LevelWarn
	case ErrorLevel:
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

func (l Level) String() string {
	return l.kratos().String()
}

// helperStore stores the current *log.Helper atomically so SetLogger is safe at any time.
var (
	loggerStore atomic.Value // of loggerBox
	helperStore atomic.Value // of *log.Helper
)

type loggerBox struct{ l log.Logger }

// SetLogger installs l as the process-wide logger used by the package helpers
// and by components constructed without an explicit logger.
func SetLogger(l log.Logger) {
	if l == nil {
		return
	}
	loggerStore.Store(loggerBox{l: l})
	helperStore.Store(log.NewHelper(l))
}

// GetLogger returns the installed logger, or a stderr fallback before SetLogger is called.
func GetLogger() log.Logger {
	if v, ok := loggerStore.Load().(loggerBox); ok && v.l != nil {
		return v.l
	}
	return fallback
}

// NewHelper wraps l in a kratos helper, using the package logger when l is nil.
func NewHelper(l log.Logger, kv ...any) *log.Helper {
	if l == nil {
		l = GetLogger()
	}
	if len(kv) > 0 {
		l = log.With(l, kv...)
	}
	return log.NewHelper(l)
}

// fallbackLogger writes plain lines to stderr until a real logger is installed.
type fallbackLogger struct{}

var fallback log.Logger = fallbackLogger{}

func (fallbackLogger) Log(level log.Level, keyvals ...any) error {
	var b strings.Builder
	for i := 0; i+1 < len(keyvals); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=%v", keyvals[i], keyvals[i+1])
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	_, err := fmt.Fprintf(os.Stderr, "[%s] [%s] [hive-log-fallback] %s\n", timestamp, level.String(), b.String())
	return err
}

func helper() *log.Helper {
	if h, ok := helperStore.Load().(*log.Helper); ok && h != nil {
		return h
	}
	return log.NewHelper(fallback)
}

func Debugf(format string, a ...any) { helper().Debugf(format, a...) }

func Debugw(keyvals ...any) { helper().Debugw(keyvals...) }

func Infof(format string, a ...any) { helper().Infof(format, a...) }

func Infow(keyvals ...any) { helper().Infow(keyvals...) }

func Warnf(format string, a ...any) { helper().Warnf(format, a...) }

func Warnw(keyvals ...any) { helper().Warnw(keyvals...) }

func Errorf(format string, a ...any) { helper().Errorf(format, a...) }

func Errorw(keyvals ...any) { helper().Errorw(keyvals...) }

func Debug(a ...any) { helper().Debug(a...) }

func Info(a ...any) { helper().Info(a...) }

func Warn(a ...any) { helper().Warn(a...) }

func Error(a ...any) { helper().Error(a...) }
