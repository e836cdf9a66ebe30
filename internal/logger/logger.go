package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the application logger shared by every component
var Logger *logrus.Logger

var defaultOnce sync.Once

// Options controls Initialize. Zero values log INFO to stdout.
type Options struct {
	Level string
	File  string
}

// Initialize sets up the logger with proper configuration
func Initialize(opts ...Options) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	l := logrus.New()
	l.SetLevel(parseLevel(o.Level))
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableColors:   o.File != "",
	})
	l.SetOutput(os.Stdout)

	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0755); err != nil {
			fmt.Printf("Failed to create logs directory: %v\n", err)
		} else if f, err := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err != nil {
			fmt.Printf("Failed to open log file: %v\n", err)
		} else {
			l.SetOutput(f)
			l.SetReportCaller(true)
		}
	}

	Logger = l
	Logger.WithFields(logrus.Fields{
		"log_level": l.GetLevel().String(),
		"log_file":  o.File,
	}).Info("Logging system initialized")
}

func parseLevel(s string) logrus.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// GetLogger returns the configured main logger instance
func GetLogger() *logrus.Logger {
	defaultOnce.Do(func() {
		if Logger == nil {
			Initialize()
		}
	})
	return Logger
}

// WithContext creates a logger with additional context fields
func WithContext(fields map[string]interface{}) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// WithProject creates a logger with project context
func WithProject(projectID int64, component string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"project_id": projectID,
		"component":  component,
	})
}

// WithLaunch creates a logger with launch context
func WithLaunch(projectID, launchID int64, component string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"project_id": projectID,
		"launch_id":  launchID,
		"component":  component,
	})
}

// WithAnalyzer creates a logger with analyzer backend context
func WithAnalyzer(analyzerID, route string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"analyzer":  analyzerID,
		"route":     route,
		"component": "analyzer_client",
	})
}

// WithJob creates a logger with job context
func WithJob(jobID string, jobType string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"job_id":    jobID,
		"job_type":  jobType,
		"component": "job_service",
	})
}

// WithError creates a logger with error context
func WithError(err error, component string) *logrus.Entry {
	fields := logrus.Fields{
		"error":     err.Error(),
		"component": component,
	}

	// Add stack trace for debug level
	if GetLogger().GetLevel() >= logrus.DebugLevel {
		fields["stack_trace"] = getStackTrace()
	}

	return GetLogger().WithFields(fields)
}

// getStackTrace returns a formatted stack trace
func getStackTrace() string {
	var stack []string
	for i := 1; i < 10; i++ {
		if pc, file, line, ok := runtime.Caller(i); ok {
			fn := runtime.FuncForPC(pc)
			stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		}
	}
	return strings.Join(stack, "\n")
}

// Log levels convenience functions (with fields)
func Debug(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Debug(msg)
}

func Info(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Info(msg)
}

func Warn(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Warn(msg)
}

func Error(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Error(msg)
}

func Fatal(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Fatal(msg)
}
