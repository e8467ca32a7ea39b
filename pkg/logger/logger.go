package logger

import (
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// ParseLevel converts a LOG_LEVEL string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "notice", "warn", "warning":
		return NoticeLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// intentPalette is cycled by intent id hash so one intent keeps one color across lines.
var intentPalette = []color.Attribute{
	color.FgHiGreen,
	color.FgYellow,
	color.FgMagenta,
	color.FgHiBlue,
	color.FgCyan,
	color.FgBlue,
	color.FgGreen,
	color.FgHiMagenta,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithIntent(intentID string, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithIntent(intentID string, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithIntent(intentID string, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithIntent(intentID string, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                      {}
func (l *EmptyLogger) InfoWithIntent(_ string, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                     {}
func (l *EmptyLogger) ErrorWithIntent(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                     {}
func (l *EmptyLogger) DebugWithIntent(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                    {}
func (l *EmptyLogger) NoticeWithIntent(_ string, _ string, _ ...interface{}) {}

// StdLogger is a standard implementation of the Logger interface that logs messages to the console.
type StdLogger struct {
	enableColoring bool
	level          Level
	out            *log.Logger
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return NewStdLoggerWithWriter(os.Stderr, enableColoring, level)
}

// NewStdLoggerWithWriter creates a StdLogger writing to w instead of stderr.
func NewStdLoggerWithWriter(w io.Writer, enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
		out:            log.New(w, "", log.LstdFlags),
	}
}

// intentTag renders a short, stable tag for an intent id.
func (l *StdLogger) intentTag(intentID string) string {
	if intentID == "" {
		return ""
	}
	short := intentID
	if len(short) > 10 {
		short = short[:10]
	}
	tag := "[" + short + "] "
	if !l.enableColoring {
		return tag
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(intentID))
	attr := intentPalette[int(h.Sum32())%len(intentPalette)]
	return color.New(attr).Sprint(tag)
}

// formatMessage formats the log message with the appropriate log level, intent tag, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, intentID string, format string) string {
	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}
	if l.enableColoring && level == ErrorLevel {
		levelStr = color.New(color.FgRed).Sprint(levelStr)
	}

	return levelStr + l.intentTag(intentID) + format
}

func (l *StdLogger) logf(level Level, intentID string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= level {
		l.out.Printf(l.formatMessage(level, intentID, format), args...)
	}
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.logf(InfoLevel, "", format, args...)
}

func (l *StdLogger) InfoWithIntent(intentID string, format string, args ...interface{}) {
	l.logf(InfoLevel, intentID, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.logf(ErrorLevel, "", format, args...)
}

func (l *StdLogger) ErrorWithIntent(intentID string, format string, args ...interface{}) {
	l.logf(ErrorLevel, intentID, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.logf(DebugLevel, "", format, args...)
}

func (l *StdLogger) DebugWithIntent(intentID string, format string, args ...interface{}) {
	l.logf(DebugLevel, intentID, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.logf(NoticeLevel, "", format, args...)
}

func (l *StdLogger) NoticeWithIntent(intentID string, format string, args ...interface{}) {
	l.logf(NoticeLevel, intentID, format, args...)
}
