// Package logger is a thin structured-logging facade so that library
// packages do not depend on a concrete logging backend.
package logger

// Field is one structured key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, val any) Field { return Field{Key: key, Value: val} }

// Logger is the logging capability the rest of the module consumes.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}
func (nopLogger) Fatal(string, ...Field) {}

// NewNop returns a Logger that discards everything.
func NewNop() Logger { return nopLogger{} }
