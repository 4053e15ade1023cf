// Package log - zerolog adapter for Kratos log.Logger
package log

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/rs/zerolog"
)

type zeroLogLogger struct {
	logger zerolog.Logger
}

// Log implements the log.Logger interface.
// It converts Kratos log levels to zerolog levels and handles structured logging.
func (l zeroLogLogger) Log(level log.Level, keyvals ...any) error {
	// Tolerate odd number of keyvals by appending a placeholder value
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "BAD_VALUE")
	}

	var event *zerolog.Event
	switch level {
	case log.LevelDebug:
		event = l.logger.Debug()
	case log.LevelInfo:
		event = l.logger.Info()
	case log.LevelWarn:
		event = l.logger.Warn()
	case log.LevelError:
		event = l.logger.Error()
	case log.LevelFatal:
		event = l.logger.Fatal()
	default:
		event = l.logger.Warn().Interface("original_level", level)
	}

	var msg string
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("BAD_KEY_%d", i)
			event = event.Interface("original_key", keyvals[i])
		}
		val := keyvals[i+1]

		if key == log.DefaultMessageKey {
			if str, ok := val.(string); ok {
				msg = str
			} else {
				msg = fmt.Sprint(val)
			}
			continue
		}
		if key == "err" || key == "error" {
			if e, ok := val.(error); ok {
				event = event.Err(e)
				continue
			}
		}
		event = event.Interface(key, val)
	}

	event.Msg(msg)
	return nil
}

// Options configures NewLogger.
type Options struct {
	Writer  io.Writer
	Level   Level
	Console bool
	// Fields are attached to every record, e.g. "service.id", serverID.
	Fields []any
}

// NewLogger builds a kratos logger writing through zerolog and filtered at opts.Level.
func NewLogger(opts Options) log.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if opts.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).With().Timestamp().Logger().Level(zerolog.TraceLevel)

	var l log.Logger = zeroLogLogger{logger: zl}
	if len(opts.Fields) > 0 {
		l = log.With(l, opts.Fields...)
	}
	ll := &levelLogger{next: l}
	ll.level.Store(int32(opts.Level))
	return ll
}

// levelLogger drops records below a threshold that SetLevel can move at runtime.
type levelLogger struct {
	next  log.Logger
	level atomic.Int32
}

func (l *levelLogger) Log(level log.Level, keyvals ...any) error {
	if level < Level(l.level.Load()).kratos() {
		return nil
	}
	return l.next.Log(level, keyvals...)
}

// SetLevel changes the threshold of the installed logger when it was built by
// NewLogger. Other loggers are left untouched.
func SetLevel(lv Level) {
	if ll, ok := GetLogger().(*levelLogger); ok {
		ll.level.Store(int32(lv))
	}
}
