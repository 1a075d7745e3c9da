package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[Level]string{
	DEBUG: "\033[36m",
	INFO:  "\033[32m",
	WARN:  "\033[33m",
	ERROR: "\033[31m",
	FATAL: "\033[35m",
}

const colorReset = "\033[0m"

// Config holds logger configuration
type Config struct {
	Level       Level
	Output      io.Writer
	JSONFormat  bool
	EnableColor bool
	ShowCaller  bool
	TimeFormat  string
	ServiceName string
}

// DefaultConfig returns the logger configuration read from LOG_* variables.
func DefaultConfig() *Config {
	level := INFO
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		level = ParseLevel(lvl)
	}

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "admin-gateway"
	}

	return &Config{
		Level:       level,
		Output:      os.Stdout,
		JSONFormat:  os.Getenv("LOG_FORMAT") == "json",
		EnableColor: os.Getenv("LOG_COLOR") != "false",
		ShowCaller:  true,
		TimeFormat:  "2006-01-02T15:04:05.000Z07:00",
		ServiceName: service,
	}
}

// Logger is a structured logger carrying a set of fields.
type Logger struct {
	config *Config
	fields map[string]interface{}
	mu     sync.RWMutex
}

// LogEntry is what gets written for one log call
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Service   string                 `json:"service,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a new logger with given config
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	return &Logger{
		config: config,
		fields: make(map[string]interface{}),
	}
}

// Default returns the process-wide logger
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(nil)
	})
	return defaultLogger
}

func (l *Logger) clone(extra int) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fields := make(map[string]interface{}, len(l.fields)+extra)
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{config: l.config, fields: fields}
}

// With creates a child logger with one more field
func (l *Logger) With(key string, value interface{}) *Logger {
	child := l.clone(1)
	child.fields[key] = value
	return child
}

// WithFields creates a child logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	child := l.clone(len(fields))
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

// WithError adds error field to logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With("error", err.Error())
}

// WithContext copies request-scoped values (request id, session id, user id) into the fields.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	child := l.clone(3)
	if ctx == nil {
		return child
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		child.fields["request_id"] = v
	}
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		child.fields["session_id"] = v
	}
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		child.fields["user_id"] = v
	}
	return child
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log(ERROR, msg, args...) }

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log(FATAL, msg, args...)
	os.Exit(1)
}

// log accepts either printf-style args or alternating key/value pairs.
// Key/value form is detected when msg has no verbs and the first arg is a string.
func (l *Logger) log(level Level, msg string, args ...interface{}) {
	if level < l.config.Level {
		return
	}

	var kv map[string]interface{}
	if len(args) > 0 {
		if !strings.Contains(msg, "%") {
			kv = pairs(args)
		} else {
			msg = fmt.Sprintf(msg, args...)
		}
	}

	entry := LogEntry{
		Timestamp: time.Now().Format(l.config.TimeFormat),
		Level:     levelNames[level],
		Message:   msg,
		Service:   l.config.ServiceName,
	}

	if l.config.ShowCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = fmt.Sprintf("%s:%d", shortenPath(file), line)
		}
	}

	l.mu.RLock()
	if len(l.fields) > 0 || len(kv) > 0 {
		entry.Fields = make(map[string]interface{}, len(l.fields)+len(kv))
		for k, v := range l.fields {
			entry.Fields[k] = v
		}
	}
	l.mu.RUnlock()
	for k, v := range kv {
		entry.Fields[k] = v
	}

	if l.config.JSONFormat {
		l.outputJSON(entry)
	} else {
		l.outputText(level, entry)
	}
}

func pairs(args []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		if i+1 < len(args) {
			if err, isErr := args[i+1].(error); isErr && err != nil {
				out[key] = err.Error()
				continue
			}
			out[key] = args[i+1]
		} else {
			out[key] = "(missing)"
		}
	}
	return out
}

func (l *Logger) outputJSON(entry LogEntry) {
	data, _ := json.Marshal(entry)
	fmt.Fprintln(l.config.Output, string(data))
}

func (l *Logger) outputText(level Level, entry LogEntry) {
	var sb strings.Builder

	if l.config.EnableColor {
		sb.WriteString(levelColors[level])
	}
	sb.WriteString(entry.Timestamp)
	sb.WriteString(fmt.Sprintf(" [%-5s] ", entry.Level))
	if l.config.EnableColor {
		sb.WriteString(colorReset)
	}

	if entry.Caller != "" {
		sb.WriteString(fmt.Sprintf("[%s] ", entry.Caller))
	}
	sb.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" |")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, entry.Fields[k]))
		}
	}

	fmt.Fprintln(l.config.Output, sb.String())
}

// ============================================================
// Request log
// ============================================================

// RequestLog describes one handled HTTP request
type RequestLog struct {
	Method    string
	Path      string
	Status    int
	Duration  time.Duration
	ClientIP  string
	UserAgent string
	RequestID string
}

// LogRequest logs a handled request; 4xx as WARN, 5xx as ERROR.
func (l *Logger) LogRequest(req RequestLog) {
	level := INFO
	if req.Status >= 500 {
		level = ERROR
	} else if req.Status >= 400 {
		level = WARN
	}

	l.WithFields(map[string]interface{}{
		"method":      req.Method,
		"path":        req.Path,
		"status":      req.Status,
		"duration_ms": req.Duration.Milliseconds(),
		"client_ip":   req.ClientIP,
		"user_agent":  req.UserAgent,
		"request_id":  req.RequestID,
	}).log(level, fmt.Sprintf("%s %s -> %d (%s)", req.Method, req.Path, req.Status, req.Duration))
}

// ============================================================
// Backend call log
// ============================================================

// BackendCall describes one outbound call to the booking backend
type BackendCall struct {
	Method    string
	Endpoint  string
	Status    int
	Duration  time.Duration
	Refreshed bool
	Error     string
}

// LogBackendCall logs an outbound backend request
func (l *Logger) LogBackendCall(call BackendCall) {
	level := DEBUG
	switch {
	case call.Error != "" || call.Status >= 500:
		level = ERROR
	case call.Duration > 2*time.Second:
		level = WARN
	}

	fields := map[string]interface{}{
		"method":      call.Method,
		"endpoint":    truncate(call.Endpoint, 200),
		"status":      call.Status,
		"duration_ms": call.Duration.Milliseconds(),
	}
	if call.Refreshed {
		fields["refreshed"] = true
	}
	if call.Error != "" {
		fields["error"] = call.Error
	}

	l.WithFields(fields).log(level, fmt.Sprintf("backend %s %s -> %d", call.Method, truncate(call.Endpoint, 80), call.Status))
}

// ============================================================
// Security event log
// ============================================================

// SecurityEvent describes a verification-gate or session event
type SecurityEvent struct {
	Kind     string
	Event    string
	Identity string
	Attempts int
	Metadata map[string]interface{}
}

// LogSecurityEvent logs blocks and expiries as WARN, everything else as INFO.
func (l *Logger) LogSecurityEvent(evt SecurityEvent) {
	level := INFO
	if evt.Event == "blocked" || evt.Event == "expired" {
		level = WARN
	}

	fields := map[string]interface{}{
		"kind":     evt.Kind,
		"event":    evt.Event,
		"identity": evt.Identity,
		"attempts": evt.Attempts,
	}
	for k, v := range evt.Metadata {
		fields[k] = v
	}

	l.WithFields(fields).log(level, fmt.Sprintf("[%s] %s", evt.Kind, evt.Event))
}

// ============================================================
// Helpers
// ============================================================

// ParseLevel maps a level name to Level, defaulting to INFO
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func shortenPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		return strings.Join(parts[len(parts)-2:], "/")
	}
	return path
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func Debug(msg string, args ...interface{}) { Default().log(DEBUG, msg, args...) }
func Info(msg string, args ...interface{})  { Default().log(INFO, msg, args...) }
func Warn(msg string, args ...interface{})  { Default().log(WARN, msg, args...) }
func Error(msg string, args ...interface{}) { Default().log(ERROR, msg, args...) }

func With(key string, value interface{}) *Logger       { return Default().With(key, value) }
func WithFields(fields map[string]interface{}) *Logger { return Default().WithFields(fields) }
func WithError(err error) *Logger                      { return Default().WithError(err) }
func WithContext(ctx context.Context) *Logger          { return Default().WithContext(ctx) }
