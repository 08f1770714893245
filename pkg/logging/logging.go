// Package logging provides structured logging for the pizza index server.
//
// It wraps logrus so every component logs through one configured logger:
//
//	logging.Init("info", false)
//
//	log := logging.Component("rollup")
//	log.WithField("points", n).Info("rollup completed")
//
// Request handlers use FromContext to pick up the request id set by the
// request id middleware.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// logger is configured in place so entries created at package init, before
// Init runs, pick up the final level and format.
var logger = logrus.New()

func init() {
	configure(logger, os.Stdout, logrus.InfoLevel, false)
}

func configure(l *logrus.Logger, out io.Writer, level logrus.Level, jsonFormat bool) {
	l.SetOutput(out)
	l.SetLevel(level)
	if jsonFormat {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
}

// Init configures the global logger. level is a logrus level name
// ("debug", "info", "warn", "error").
func Init(level string, jsonFormat bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	InitWithOutput(os.Stdout, lvl, jsonFormat)
	return nil
}

// InitWithOutput configures the global logger to write to out.
// Tests use it to capture log lines.
func InitWithOutput(out io.Writer, level logrus.Level, jsonFormat bool) {
	configure(logger, out, level, jsonFormat)
}

// Logger returns the global logger
func Logger() *logrus.Logger {
	return logger
}

// Component returns an entry tagged with the component name
func Component(name string) *logrus.Entry {
	return Logger().WithField("component", name)
}

type ctxKey struct{}

// WithRequestID stores a request id in ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the request id stored in ctx, or ""
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns a component entry carrying the request id, if any
func FromContext(ctx context.Context, component string) *logrus.Entry {
	entry := Component(component)
	if id := RequestID(ctx); id != "" {
		entry = entry.WithField("request_id", id)
	}
	return entry
}
