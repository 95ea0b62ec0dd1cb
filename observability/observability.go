// Package observability provides the structured logging hooks used to
// surface non-fatal diagnostics (tolerated file irregularities, fallback
// decisions) without committing callers to a logging framework.
package observability

import (
	"fmt"
	"io"
	"sync"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type stringField struct{ key, val string }

func (f stringField) Key() string        { return f.key }
func (f stringField) Value() interface{} { return f.val }

type intField struct {
	key string
	val int
}

func (f intField) Key() string        { return f.key }
func (f intField) Value() interface{} { return f.val }

type int64Field struct {
	key string
	val int64
}

func (f int64Field) Key() string        { return f.key }
func (f int64Field) Value() interface{} { return f.val }

type errorField struct {
	key string
	err error
}

func (f errorField) Key() string        { return f.key }
func (f errorField) Value() interface{} { return f.err }

func String(key, value string) Field      { return stringField{key, value} }
func Int(key string, value int) Field     { return intField{key, value} }
func Int64(key string, value int64) Field { return int64Field{key, value} }
func Error(key string, err error) Field   { return errorField{key, err} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// writerLogger prints one line per event to an io.Writer. Used by the CLI
// tools; library callers usually plug in their own Logger.
type writerLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	fields []Field
}

// NewWriterLogger returns a Logger emitting plain-text lines to out.
func NewWriterLogger(out io.Writer) Logger {
	return &writerLogger{mu: &sync.Mutex{}, out: out}
}

func (l *writerLogger) log(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s: %s", level, msg)
	for _, f := range l.fields {
		fmt.Fprintf(l.out, " %s=%v", f.Key(), f.Value())
	}
	for _, f := range fields {
		fmt.Fprintf(l.out, " %s=%v", f.Key(), f.Value())
	}
	fmt.Fprintln(l.out)
}

func (l *writerLogger) Debug(msg string, fields ...Field) { l.log("debug", msg, fields) }
func (l *writerLogger) Info(msg string, fields ...Field)  { l.log("info", msg, fields) }
func (l *writerLogger) Warn(msg string, fields ...Field)  { l.log("warn", msg, fields) }
func (l *writerLogger) Error(msg string, fields ...Field) { l.log("error", msg, fields) }

func (l *writerLogger) With(fields ...Field) Logger {
	combined := make([]Field, 0, len(l.fields)+len(fields))
	combined = append(combined, l.fields...)
	combined = append(combined, fields...)
	return &writerLogger{mu: l.mu, out: l.out, fields: combined}
}
