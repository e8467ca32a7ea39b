package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects and configures a Logger implementation.
type Options struct {
	Level    string
	Format   string // "text" or "json"
	Coloring bool
	File     string
}

// ZapLogger writes structured JSON logs through zap.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger builds a production zap logger writing to w.
func NewZapLogger(w io.Writer, level Level) *ZapLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(zapLevel(level)),
	)
	return &ZapLogger{sugar: zap.New(core).Sugar()}
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case NoticeLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *ZapLogger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *ZapLogger) InfoWithIntent(intentID string, format string, args ...interface{}) {
	l.sugar.With("intent_id", intentID).Infof(format, args...)
}

func (l *ZapLogger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *ZapLogger) ErrorWithIntent(intentID string, format string, args ...interface{}) {
	l.sugar.With("intent_id", intentID).Errorf(format, args...)
}

func (l *ZapLogger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *ZapLogger) DebugWithIntent(intentID string, format string, args ...interface{}) {
	l.sugar.With("intent_id", intentID).Debugf(format, args...)
}

func (l *ZapLogger) Notice(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *ZapLogger) NoticeWithIntent(intentID string, format string, args ...interface{}) {
	l.sugar.With("intent_id", intentID).Warnf(format, args...)
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

// New builds the Logger described by opts. LOG_FILE output is rotated by lumberjack.
func New(opts Options) (Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	if opts.File != "" {
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
	}

	switch opts.Format {
	case "", "text":
		// colors are meaningless in a rotated file
		return NewStdLoggerWithWriter(out, opts.Coloring && opts.File == "", level), nil
	case "json":
		return NewZapLogger(out, level), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
}
