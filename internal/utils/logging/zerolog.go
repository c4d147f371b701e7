package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ZeroLogger writes JSON log lines through zerolog.
type ZeroLogger struct {
	zl zerolog.Logger
}

var _ Logger = (*ZeroLogger)(nil)

// New returns a JSON logger on stdout at the given level ("debug", "info", "warn", "error").
// Unknown levels fall back to info.
func New(level string, base Fields) *ZeroLogger {
	return NewWithWriter(os.Stdout, level, base)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string, base Fields) *ZeroLogger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zctx := zerolog.New(w).Level(lvl).With().Timestamp()
	for k, v := range base {
		zctx = zctx.Interface(k, v)
	}
	return &ZeroLogger{zl: zctx.Logger()}
}

// With returns a child logger carrying the extra fields on every entry.
func (l *ZeroLogger) With(fields Fields) *ZeroLogger {
	zctx := l.zl.With()
	for k, v := range fields {
		zctx = zctx.Interface(k, v)
	}
	return &ZeroLogger{zl: zctx.Logger()}
}

// Debug logs at debug level.
func (l *ZeroLogger) Debug(msg string, ctx Fields) { l.emit(l.zl.Debug(), msg, ctx) }

// Info logs at info level.
func (l *ZeroLogger) Info(msg string, ctx Fields) { l.emit(l.zl.Info(), msg, ctx) }

// Warn logs at warn level.
func (l *ZeroLogger) Warn(msg string, ctx Fields) { l.emit(l.zl.Warn(), msg, ctx) }

// Error logs at error level.
func (l *ZeroLogger) Error(msg string, ctx Fields) { l.emit(l.zl.Error(), msg, ctx) }

func (l *ZeroLogger) emit(ev *zerolog.Event, msg string, ctx Fields) {
	if ev == nil {
		return
	}
	for k, v := range ctx {
		if err, ok := v.(error); ok {
			ev = ev.AnErr(k, err)
			continue
		}
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
