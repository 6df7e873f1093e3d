// Package logger writes one JSON object per line, tagged with the service and the
// request, school and trip the line belongs to.
package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

const (
	levelDebug = "DEBUG"
	levelInfo  = "INFO"
	levelError = "ERROR"
)

// ErrorObject is emitted only for error logs.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

// LogEntry is the wire shape of one line.
type LogEntry struct {
	Timestamp string       `json:"timestamp"`
	Level     string       `json:"level"`
	Service   string       `json:"service"` // trip-service, tracker-service
	Action    string       `json:"action"`  // snake_case event name, e.g. scan_applied
	Message   string       `json:"message"`
	Hostname  string       `json:"hostname"`
	RequestID string       `json:"request_id,omitempty"`
	SchoolID  string       `json:"school_id,omitempty"`
	TripID    string       `json:"trip_id,omitempty"`
	Details   any          `json:"details,omitempty"`
	Error     *ErrorObject `json:"error,omitempty"`
}

type Logger struct {
	service  string
	hostname string

	mu  sync.Mutex
	out io.Writer
}

// New creates a logger for service that writes to stdout.
func New(service string) *Logger {
	return NewWithWriter(service, os.Stdout)
}

// NewWithWriter creates a logger that writes to w. A nil w discards output.
func NewWithWriter(service string, w io.Writer) *Logger {
	hostname, err := os.Hostname()
	if err != nil || strings.TrimSpace(hostname) == "" {
		hostname = "unknown-hostname"
	}
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown-service"
	}
	if w == nil {
		w = io.Discard
	}
	return &Logger{service: service, hostname: hostname, out: w}
}

// Service returns the name every line is tagged with.
func (l *Logger) Service() string {
	return l.service
}

func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.write(l.entry(ctx, levelDebug, action, msg, details))
}

func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.write(l.entry(ctx, levelInfo, action, msg, details))
}

// Error writes an ERROR line with err and the current goroutine's stack.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = errors.New("unknown error")
	}
	e := l.entry(ctx, levelError, action, msg, details)
	e.Error = &ErrorObject{Msg: strings.TrimSpace(err.Error()), Stack: string(debug.Stack())}
	l.write(e)
}

func (l *Logger) entry(ctx context.Context, level, action, msg string, details any) LogEntry {
	action = strings.TrimSpace(action)
	if action == "" {
		action = "unspecified"
	}
	return LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Service:   l.service,
		Action:    action,
		Message:   strings.TrimSpace(msg),
		Hostname:  l.hostname,
		RequestID: fromContext(ctx, requestIDKey),
		SchoolID:  fromContext(ctx, schoolIDKey),
		TripID:    fromContext(ctx, tripIDKey),
		Details:   details,
	}
}

// write encodes e as one line. Details that cannot be encoded are dropped, and if the
// entry still fails a minimal logger_marshal_failed line is written instead.
func (l *Logger) write(e LogEntry) {
	b, err := json.Marshal(e)
	if err != nil && e.Details != nil {
		e.Details = nil
		b, err = json.Marshal(e)
	}
	if err != nil {
		b, err = json.Marshal(LogEntry{
			Timestamp: e.Timestamp,
			Level:     levelError,
			Service:   l.service,
			Action:    "logger_marshal_failed",
			Message:   "failed to encode log entry",
			Hostname:  l.hostname,
			Error:     &ErrorObject{Msg: err.Error(), Stack: string(debug.Stack())},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
			return
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(b, '\n'))
}

// ----- context scope -----

type ctxKey uint8

const (
	requestIDKey ctxKey = iota
	schoolIDKey
	tripIDKey
)

func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	return withValue(ctx, requestIDKey, reqID)
}

// WithSchoolID tags later lines with the tenant they run for.
func (l *Logger) WithSchoolID(ctx context.Context, schoolID string) context.Context {
	return withValue(ctx, schoolIDKey, schoolID)
}

func (l *Logger) WithTripID(ctx context.Context, tripID string) context.Context {
	return withValue(ctx, tripIDKey, tripID)
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if strings.TrimSpace(v) == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func fromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}
