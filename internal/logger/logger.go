package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the different logging levels
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger writes levelled messages, optionally tagged with a component name
type Logger struct {
	mu        sync.RWMutex
	level     LogLevel
	component string
	out       *log.Logger
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Init initializes the global logger with the specified level and output
func Init(level LogLevel, output io.Writer) {
	if output == nil {
		output = os.Stdout
	}

	globalMu.Lock()
	globalLogger = &Logger{
		level: level,
		out:   log.New(output, "", log.LstdFlags),
	}
	globalMu.Unlock()
}

// ParseLogLevel parses a string log level and returns the corresponding LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARNING", "WARN":
		return WARNING
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()

	if l == nil {
		Init(INFO, os.Stdout)
		globalMu.RLock()
		l = globalLogger
		globalMu.RUnlock()
	}
	return l
}

// Named returns a logger that prefixes every message with the component name.
// It shares output and level with the global logger.
func Named(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) root() *Logger {
	if l.out == nil {
		return GetLogger()
	}
	return l
}

func (l *Logger) logf(level LogLevel, format string, v ...interface{}) {
	r := l.root()
	r.mu.RLock()
	enabled := r.level <= level
	out := r.out
	r.mu.RUnlock()

	if !enabled {
		return
	}

	msg := fmt.Sprintf(format, v...)
	if l.component != "" {
		out.Printf("[%s] [%s] %s", level, l.component, msg)
		return
	}
	out.Printf("[%s] %s", level, msg)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) { l.logf(DEBUG, format, v...) }

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) { l.logf(INFO, format, v...) }

// Warning logs a warning message
func (l *Logger) Warning(format string, v ...interface{}) { l.logf(WARNING, format, v...) }

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) { l.logf(ERROR, format, v...) }

// Fatal logs an error message and exits the program
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.logf(ERROR, format, v...)
	os.Exit(1)
}

// Global convenience functions
func Debug(format string, v ...interface{}) {
	GetLogger().Debug(format, v...)
}

func Info(format string, v ...interface{}) {
	GetLogger().Info(format, v...)
}

func Warning(format string, v ...interface{}) {
	GetLogger().Warning(format, v...)
}

func Error(format string, v ...interface{}) {
	GetLogger().Error(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GetLogger().Fatal(format, v...)
}

// SetLevel changes the log level of the global logger
func SetLevel(level LogLevel) {
	l := GetLogger()
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// SetOutput changes the output destination of the global logger
func SetOutput(output io.Writer) {
	l := GetLogger()
	l.mu.Lock()
	l.out.SetOutput(output)
	l.mu.Unlock()
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	l := GetLogger()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= DEBUG
}
