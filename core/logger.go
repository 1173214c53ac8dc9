package core

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// Logger is the structured logging surface used by pools, threads and
// timers. Implementations can bridge to any logging backend.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a key-value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// DefaultLogger writes logfmt-style lines to Out, or os.Stderr when Out is
// nil. Debug lines are dropped unless Verbose is set.
type DefaultLogger struct {
	Verbose bool
	Out     io.Writer

	mu sync.Mutex
}

// NewDefaultLogger returns a non-verbose logger writing to os.Stderr.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{}
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	if l.Verbose {
		l.write("debug", msg, fields)
	}
}

func (l *DefaultLogger) Info(msg string, fields ...Field)  { l.write("info", msg, fields) }
func (l *DefaultLogger) Warn(msg string, fields ...Field)  { l.write("warn", msg, fields) }
func (l *DefaultLogger) Error(msg string, fields ...Field) { l.write("error", msg, fields) }

func (l *DefaultLogger) write(level, msg string, fields []Field) {
	line := formatLogLine(timecache.CachedTime(), level, msg, fields)

	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.Out
	if out == nil {
		out = os.Stderr
	}
	io.WriteString(out, line)
}

// formatLogLine renders `time=... level=... msg=... key=value` with a
// trailing newline. Values containing spaces or quotes are quoted.
func formatLogLine(at time.Time, level, msg string, fields []Field) string {
	var b strings.Builder
	b.WriteString("time=")
	b.WriteString(at.Format(time.RFC3339Nano))
	b.WriteString(" level=")
	b.WriteString(level)
	b.WriteString(" msg=")
	b.WriteString(logfmtValue(msg))
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(logfmtValue(fieldString(f.Value)))
	}
	b.WriteByte('\n')
	return b.String()
}

func fieldString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case int:
		return strconv.Itoa(v)
	case uint64:
		return strconv.FormatUint(v, 10)
	case time.Duration:
		return v.String()
	case interface{ String() string }:
		return v.String()
	default:
		return strings.TrimSpace(strings.ReplaceAll(fmt.Sprint(v), "\n", " "))
	}
}

func logfmtValue(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}

// NoOpLogger is a logger that discards all log messages
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}

func loggerOrDefault(l Logger) Logger {
	if l == nil {
		return NewNoOpLogger()
	}
	return l
}
