package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
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

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

const levelFatal = slog.Level(12)

func (l Level) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	case FATAL:
		return levelFatal
	default:
		return slog.LevelInfo
	}
}

// exit is replaced in tests
var exit = os.Exit

// Logger provides leveled, structured logging with optional file output
type Logger struct {
	level      Level
	jsonFormat bool
	slog       *slog.Logger
	fields     map[string]interface{}
	logFile    *os.File
	component  string
}

// NewLogger creates a new logger writing to stdout
func NewLogger(level Level, jsonFormat bool) *Logger {
	l := &Logger{
		level:      level,
		jsonFormat: jsonFormat,
		fields:     make(map[string]interface{}),
	}
	l.slog = slog.New(l.newHandler(os.Stdout))
	return l
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	l := NewLogger(FATAL, false)
	l.SetOutput(io.Discard)
	return l
}

// NewFileLogger creates a logger that writes to /var/log/rrfloop/<component>/<subcomponent>.log
// and stdout. Falls back to ./logs/<component>/ if /var/log is not writable.
func NewFileLogger(component, subComponent string, level Level, jsonFormat bool) (*Logger, error) {
	logPath := GetLogPath(component, subComponent)
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(logPath), err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	l := &Logger{
		level:      level,
		jsonFormat: jsonFormat,
		fields:     make(map[string]interface{}),
		logFile:    logFile,
		component:  component + "/" + subComponent,
	}
	l.slog = slog.New(slogmulti.Fanout(l.newHandler(logFile), l.newHandler(os.Stdout)))

	l.Info(fmt.Sprintf("Logger initialized: %s -> %s", l.component, logPath))
	return l, nil
}

func (l *Logger) newHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: l.level.slogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == levelFatal {
					a.Value = slog.StringValue(FATAL.String())
				}
			}
			return a
		},
	}
	if l.jsonFormat {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetOutput replaces every sink with w
func (l *Logger) SetOutput(w io.Writer) {
	l.slog = slog.New(l.newHandler(w))
}

func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	lvl := level.slogLevel()
	if !l.slog.Enabled(context.Background(), lvl) {
		if level == FATAL {
			exit(1)
		}
		return
	}

	attrs := make([]slog.Attr, 0, len(l.fields)+len(fields))
	for k, v := range l.fields {
		if _, overridden := fields[k]; overridden {
			continue
		}
		attrs = append(attrs, slog.Any(k, v))
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.slog.LogAttrs(context.Background(), lvl, message, attrs...)

	if level == FATAL {
		exit(1)
	}
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, first(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, first(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, first(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, first(fields))
}

// Fatal logs a fatal message and exits. Only the command layer calls this.
func (l *Logger) Fatal(message string, fields ...map[string]interface{}) {
	l.log(FATAL, message, first(fields))
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		newFields[k] = v
	}
	newFields[key] = value
	return &Logger{
		level:      l.level,
		jsonFormat: l.jsonFormat,
		slog:       l.slog,
		fields:     newFields,
		component:  l.component,
	}
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch level {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	case "FATAL", "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	if l.logFile != nil {
		l.Info("Logger closing")
		return l.logFile.Close()
	}
	return nil
}

// isWritable checks if directory is writable
func isWritable(path string) bool {
	if err := os.MkdirAll(path, 0755); err != nil {
		return false
	}

	testFile := filepath.Join(path, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(testFile)
	return true
}

// GetLogPath returns the expected log path for a component
func GetLogPath(component, subComponent string) string {
	baseDir := "/var/log/rrfloop"
	if !isWritable(baseDir) {
		baseDir = "./logs"
	}

	logFileName := component + ".log"
	if subComponent != "" {
		logFileName = subComponent + ".log"
	}

	return filepath.Join(baseDir, component, logFileName)
}
