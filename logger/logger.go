package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields type alias for logrus.Fields to maintain compatibility
type Fields map[string]interface{}

// Log wraps logrus.Logger with additional functionality
type Log struct {
	*logrus.Logger
}

// Entry wraps logrus.Entry with additional functionality
type Entry struct {
	*logrus.Entry
}

var globalLogger *Log

func init() {
	globalLogger = Logger()
}

func Logger() *Log {
	logger := logrus.New()
	logger.SetReportCaller(true)

	if lvl, err := parseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.SetFormatter(jsonFormatter())
	logger.AddHook(&callerHook{})
	return &Log{Logger: logger}
}

func GetLogger() *Log {
	return globalLogger
}

// parseLevel accepts logrus level names plus "report", which logs at info and
// lets main start the periodic stream/export report. Empty means info.
func parseLevel(level string) (logrus.Level, error) {
	switch level = strings.ToLower(strings.TrimSpace(level)); level {
	case "", "report":
		return logrus.InfoLevel, nil
	default:
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return logrus.InfoLevel, fmt.Errorf("invalid log level '%s'", level)
		}
		return lvl, nil
	}
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	file := filepath.Base(f.File)
	return "", fmt.Sprintf("%s:%d", file, f.Line)
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: callerPrettyfier,
	}
}

func (l *Log) WithComponent(component string) *Entry {
	return &Entry{Entry: l.Logger.WithField("component", component)}
}

func (l *Log) WithFields(fields Fields) *Entry {
	return &Entry{Entry: l.Logger.WithFields(logrus.Fields(fields))}
}

func (l *Log) WithError(err error) *Entry {
	return &Entry{Entry: l.Logger.WithError(err)}
}

func (e *Entry) WithComponent(component string) *Entry {
	return &Entry{Entry: e.Entry.WithField("component", component)}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{Entry: e.Entry.WithField(key, value)}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}

func (e *Entry) Info(args ...interface{}) {
	e.Entry.Info(args...)
}

func (e *Entry) Warn(args ...interface{}) {
	if component, ok := e.Entry.Data["component"].(string); ok {
		recordWarn(component)
	}
	e.Entry.Warn(args...)
}

func (e *Entry) Debug(args ...interface{}) {
	e.Entry.Debug(args...)
}

func (e *Entry) Error(args ...interface{}) {
	if component, ok := e.Entry.Data["component"].(string); ok {
		recordError(component)
	}
	e.Entry.Error(args...)
}

// Configure sets up the logger with the provided configuration
func (l *Log) Configure(level string, format string, output string, maxAge int) error {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}

	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)

	l.SetReportCaller(true)

	switch format {
	case "json", "":
		l.SetFormatter(jsonFormatter())
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		})
	default:
		return fmt.Errorf("invalid log format '%s'", format)
	}

	switch output {
	case "stdout", "":
		l.SetOutput(os.Stdout)
	case "stderr":
		l.SetOutput(os.Stderr)
	default:
		// Assume it's a file path
		if maxAge > 0 {
			l.SetOutput(&lumberjack.Logger{
				Filename: output,
				MaxAge:   maxAge,
				MaxSize:  100,
				Compress: true,
			})
		} else {
			file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				return fmt.Errorf("failed to open log file '%s': %w", output, err)
			}
			l.SetOutput(file)
		}
	}

	return nil
}

// Performance logging helper
func LogPerformanceEntry(entry *Entry, component string, operation string, duration time.Duration, fields Fields) {
	if fields == nil {
		fields = make(Fields)
	}
	fields["duration_ms"] = float64(duration.Nanoseconds()) / 1e6
	fields["operation"] = operation

	entry.WithFields(fields).WithComponent(component).Debug("performance metric")
}

// Data flow logging helper
func LogDataFlowEntry(entry *Entry, source string, destination string, recordCount int, dataType string) {
	entry.WithFields(Fields{
		"source":       source,
		"destination":  destination,
		"record_count": recordCount,
		"data_type":    dataType,
		"flow_type":    "data_flow",
	}).Debug("data flow metric")
}

// Set output for logger
func (l *Log) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// Set level for logger
func (l *Log) SetLevel(level logrus.Level) {
	l.Logger.SetLevel(level)
}

// Set formatter for logger
func (l *Log) SetFormatter(formatter logrus.Formatter) {
	l.Logger.SetFormatter(formatter)
}
