// Package logging provides the package-level logrus logger used by
// the Executor and CallbackBus for the WARN/ERROR lines the engine's
// error-handling contract mandates.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel sets the minimum level the standard logger emits.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

// SetOutput redirects the standard logger's output.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// Logger returns the package-level logger.
func Logger() *logrus.Logger {
	return std
}

// WithFields returns an Entry on the standard logger carrying fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return std.WithFields(fields)
}

func Debugf(format string, args ...any) { std.Debugf(format, args...) }
func Infof(format string, args ...any)  { std.Infof(format, args...) }
func Warnf(format string, args ...any)  { std.Warnf(format, args...) }
func Errorf(format string, args ...any) { std.Errorf(format, args...) }
