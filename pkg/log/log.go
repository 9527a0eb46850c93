package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level is the severity of a log call.
type Level uint8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Fields carries structured key/value context for a log call.
type Fields map[string]any

// Logger receives structured log calls. Implementations must not block
// or panic.
type Logger interface {
	Log(level Level, msg string, fields Fields)
}

// Nop discards every call.
type Nop struct{}

func (Nop) Log(Level, string, Fields) {}

// Func adapts a plain function to the Logger interface.
type Func func(level Level, msg string, fields Fields)

func (f Func) Log(level Level, msg string, fields Fields) {
	if f != nil {
		f(level, msg, fields)
	}
}

type LoggerType uint8

const (
	ConsoleLogger LoggerType = iota
	JSONLogger
)

// Options for Logger
type Options struct {
	Level Level
	Type  LoggerType
	// Output defaults to os.Stdout.
	Output io.Writer
	// Component is attached to every entry when set.
	Component string
}

// ZeroLogger is a Logger backed by zerolog.
type ZeroLogger struct {
	zerolog.Logger
}

var _ Logger = (*ZeroLogger)(nil)

// New builds a zerolog-backed logger.
func New(opts Options) *ZeroLogger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var zl zerolog.Logger
	switch opts.Type {
	case ConsoleLogger:
		zl = zerolog.New(newConsoleWriter(out))
	default:
		zl = zerolog.New(out)
	}

	ctx := zl.Level(toZerolog(opts.Level)).With().Timestamp()
	if opts.Component != "" {
		ctx = ctx.Str("component", opts.Component)
	}
	return &ZeroLogger{Logger: ctx.Logger()}
}

// Log implements Logger.
func (l *ZeroLogger) Log(level Level, msg string, fields Fields) {
	if l == nil {
		return
	}
	ev := l.WithLevel(toZerolog(level))
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		ev = ev.Fields(map[string]any(fields))
	}
	ev.Msg(msg)
}

// SetGlobalLevel adjusts the process-wide minimum level applied on top of
// each logger's own level. Safe for concurrent use.
func SetGlobalLevel(level Level) {
	zerolog.SetGlobalLevel(toZerolog(level))
}

// With returns a child logger with a fixed component name.
func (l *ZeroLogger) With(component string) *ZeroLogger {
	return &ZeroLogger{Logger: l.Logger.With().Str("component", component).Logger()}
}

// ParseLevel parses level names as accepted by zerolog ("trace", "debug",
// "info", "warn", "error").
func ParseLevel(s string) (Level, error) {
	zl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return LevelInfo, err
	}
	switch zl {
	case zerolog.TraceLevel:
		return LevelTrace, nil
	case zerolog.DebugLevel:
		return LevelDebug, nil
	case zerolog.InfoLevel, zerolog.NoLevel:
		return LevelInfo, nil
	case zerolog.WarnLevel:
		return LevelWarn, nil
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unsupported log level %q", s)
	}
}

// ParseType parses "console" or "json".
func ParseType(s string) (LoggerType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "console":
		return ConsoleLogger, nil
	case "json":
		return JSONLogger, nil
	default:
		return ConsoleLogger, fmt.Errorf("unsupported log format %q", s)
	}
}

func toZerolog(level Level) zerolog.Level {
	switch level {
	case LevelTrace:
		return zerolog.TraceLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}

	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}

	cw.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("message: \"%s\" |", i)
	}

	cw.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("\"%s\": ", i)
	}

	cw.FormatFieldValue = func(i interface{}) string {
		return fmt.Sprintf("\"%s\" |", i)
	}

	cw.FormatErrFieldValue = func(i interface{}) string {
		return fmt.Sprintf(" %s |", i)
	}
	return cw
}
