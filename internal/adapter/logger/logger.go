package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type Logger interface {
	Info(action, message, requestID string, details map[string]interface{})
	Debug(action, message, requestID string, details map[string]interface{})
	Error(action, message, requestID string, details map[string]interface{}, err error)
}

type jsonLogger struct {
	slog *slog.Logger
}

func New(service string) Logger {
	return NewWithWriter(service, os.Stdout, slog.LevelDebug)
}

// NewWithWriter writes JSON entries to w, dropping those below level.
func NewWithWriter(service string, w io.Writer, level slog.Level) Logger {
	hostname, _ := os.Hostname()

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameBuiltins,
	})

	return &jsonLogger{
		slog: slog.New(handler).With(
			slog.String("service", service),
			slog.String("hostname", hostname),
		),
	}
}

// renameBuiltins maps slog's keys onto the LogEntry layout.
func renameBuiltins(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
		a.Value = slog.StringValue(a.Value.Time().UTC().Format("2006-01-02T15:04:05.000000000Z07:00"))
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

func (l *jsonLogger) Info(action, message, requestID string, details map[string]interface{}) {
	l.log(slog.LevelInfo, action, message, requestID, details, nil)
}

func (l *jsonLogger) Debug(action, message, requestID string, details map[string]interface{}) {
	l.log(slog.LevelDebug, action, message, requestID, details, nil)
}

func (l *jsonLogger) Error(action, message, requestID string, details map[string]interface{}, err error) {
	l.log(slog.LevelError, action, message, requestID, details, err)
}

func (l *jsonLogger) log(level slog.Level, action, message, requestID string, details map[string]interface{}, err error) {
	attrs := []slog.Attr{
		slog.String("request_id", requestID),
		slog.String("action", action),
	}

	if len(details) > 0 {
		attrs = append(attrs, slog.Any("details", details))
	}

	if err != nil {
		attrs = append(attrs, slog.Any("error", ErrorInfo{
			Msg:   err.Error(),
			Stack: err.Error(),
		}))
	}

	l.slog.LogAttrs(context.Background(), level, message, attrs...)
}
