// Structured logging for the elevator controller
//
// Levelled, prefixed loggers with structured fields and text or JSON
// output. The control loop logs through per-component loggers created
// with GetLogger.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < DEBUG || l > ERROR {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a level name, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	FormatText OutputFormat = iota
	FormatJSON
)

// ParseFormat maps "json" to FormatJSON and anything else to FormatText.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Fields is a map of structured logging fields
type Fields map[string]interface{}

// sink is the output state shared by a logger and everything derived from it.
type sink struct {
	mu         sync.Mutex
	writer     io.Writer
	level      LogLevel
	timeFormat string
	colorize   bool
	format     OutputFormat
	caller     bool
}

// Logger writes prefixed log lines. Loggers derived with WithPrefix share
// the parent's output settings.
type Logger struct {
	prefix string
	out    *sink
}

// Entry is a pending log line carrying fields.
type Entry struct {
	logger *Logger
	fields Fields
}

var ansiColors = map[LogLevel]string{
	DEBUG: "\x1b[36m",
	INFO:  "\x1b[32m",
	WARN:  "\x1b[33m",
	ERROR: "\x1b[31m",
}

const ansiReset = "\x1b[0m"

// New creates a logger writing to stderr at INFO.
func New(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		out: &sink{
			writer:     os.Stderr,
			level:      INFO,
			timeFormat: "2006-01-02 15:04:05.000",
			colorize:   os.Getenv("NO_COLOR") == "",
			format:     FormatText,
		},
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.out.mu.Lock()
	l.out.level = level
	l.out.mu.Unlock()
}

func (l *Logger) GetLevel() LogLevel {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.level
}

// SetWriter sets the output writer (e.g., for testing)
func (l *Logger) SetWriter(w io.Writer) {
	l.out.mu.Lock()
	l.out.writer = w
	l.out.mu.Unlock()
}

func (l *Logger) SetColorize(enable bool) {
	l.out.mu.Lock()
	l.out.colorize = enable
	l.out.mu.Unlock()
}

func (l *Logger) SetFormat(format OutputFormat) {
	l.out.mu.Lock()
	l.out.format = format
	l.out.mu.Unlock()
}

func (l *Logger) SetCaller(enable bool) {
	l.out.mu.Lock()
	l.out.caller = enable
	l.out.mu.Unlock()
}

// Prefix returns the component name of the logger.
func (l *Logger) Prefix() string {
	return l.prefix
}

// WithPrefix returns a logger for another component sharing this output.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{prefix: prefix, out: l.out}
}

func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

func (l *Logger) WithFields(fields Fields) *Entry {
	return (&Entry{logger: l}).WithFields(fields)
}

func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", errString(err))
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.write(DEBUG, msg, args, nil) }
func (l *Logger) Info(msg string, args ...interface{})  { l.write(INFO, msg, args, nil) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.write(WARN, msg, args, nil) }
func (l *Logger) Error(msg string, args ...interface{}) { l.write(ERROR, msg, args, nil) }

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.GetLevel()
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.WithFields(Fields{key: value})
}

func (e *Entry) WithFields(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", errString(err))
}

func (e *Entry) Debug(msg string, args ...interface{}) { e.logger.write(DEBUG, msg, args, e.fields) }
func (e *Entry) Info(msg string, args ...interface{})  { e.logger.write(INFO, msg, args, e.fields) }
func (e *Entry) Warn(msg string, args ...interface{})  { e.logger.write(WARN, msg, args, e.fields) }
func (e *Entry) Error(msg string, args ...interface{}) { e.logger.write(ERROR, msg, args, e.fields) }

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// callerDepth is the number of frames between write and the user call site.
const callerDepth = 2

func (l *Logger) write(level LogLevel, msg string, args []interface{}, fields Fields) {
	s := l.out
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	var caller string
	if s.caller {
		if _, file, line, ok := runtime.Caller(callerDepth); ok {
			caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}
	now := time.Now()
	if s.format == FormatJSON {
		fmt.Fprint(s.writer, l.jsonLine(now, level, msg, caller, fields))
		return
	}
	fmt.Fprint(s.writer, l.textLine(now, level, msg, caller, fields))
}

func (l *Logger) textLine(now time.Time, level LogLevel, msg, caller string, fields Fields) string {
	s := l.out
	var sb strings.Builder
	sb.WriteString(now.Format(s.timeFormat))
	fmt.Fprintf(&sb, " [%-5s] ", level)
	if s.colorize {
		sb.WriteString(ansiColors[level])
	}
	sb.WriteString(l.prefix)
	if s.colorize {
		sb.WriteString(ansiReset)
	}
	sb.WriteString(": ")
	sb.WriteString(msg)
	if caller != "" {
		sb.WriteString(" (" + caller + ")")
	}
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, fields[k])
		}
		sb.WriteString("}")
	}
	sb.WriteByte('\n')
	return sb.String()
}

// JSONLogEntry is the structure for JSON formatted log entries
type JSONLogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) jsonLine(now time.Time, level LogLevel, msg, caller string, fields Fields) string {
	data, err := json.Marshal(JSONLogEntry{
		Timestamp: now.Format(time.RFC3339Nano),
		Level:     level.String(),
		Logger:    l.prefix,
		Message:   msg,
		Caller:    caller,
		Fields:    fields,
	})
	if err != nil {
		return fmt.Sprintf(`{"error":"marshal log entry: %v"}`+"\n", err)
	}
	return string(data) + "\n"
}

var (
	defaultMu     sync.Mutex
	defaultLogger = newDefault()
)

func newDefault() *Logger {
	l := New("elevator")
	ConfigureFromEnv(l)
	return l
}

// SetDefaultLogger replaces the logger GetLogger derives from.
func SetDefaultLogger(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// GetLogger returns a component logger sharing the default output.
func GetLogger(prefix string) *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultLogger.WithPrefix(prefix)
}

// ConfigureFromEnv applies environment-based configuration to the logger.
// Environment variables:
//   - ELEVATOR_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - ELEVATOR_LOG_FORMAT: text, json
//   - ELEVATOR_LOG_CALLER: any non-empty value enables caller info
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if v := os.Getenv("ELEVATOR_LOG_LEVEL"); v != "" {
		l.SetLevel(ParseLevel(v))
	}
	if v := os.Getenv("ELEVATOR_LOG_FORMAT"); v != "" {
		l.SetFormat(ParseFormat(v))
	}
	if os.Getenv("ELEVATOR_LOG_CALLER") != "" {
		l.SetCaller(true)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}
