// Package log provides the package-level structured logger shared by the
// detector, checkpoint, and restore packages, wrapping zap the same way the
// teacher's pkg/log does.
package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the subset of a sugared zap logger this module relies on.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

type checkpointLogger struct {
	*zap.SugaredLogger
}

// Current is the package-level logger used by default. CreateLogger replaces
// it; tests may swap in their own implementation.
var Current Logger = &checkpointLogger{zap.NewNop().Sugar()}

// ParseLogLevel maps a level string to a zap.AtomicLevel. An empty string
// defaults to info; unrecognized strings are an error.
func ParseLogLevel(level string) (zap.AtomicLevel, error) {
	if level == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zap.NewAtomicLevelAt(l), nil
}

// CreateLogger builds a JSON logger at the given level. When logFile is
// empty, logs go to stderr; otherwise they rotate through lumberjack.
func CreateLogger(level zap.AtomicLevel, logFile string) Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var sink zapcore.WriteSyncer
	if logFile == "" {
		sink = zapcore.Lock(os.Stderr)
	} else {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    64, // MB
			MaxBackups: 3,
			Compress:   false,
		})
	}

	core := zapcore.NewCore(encoder, sink, level)
	return &checkpointLogger{zap.New(core).Sugar()}
}

func (l *checkpointLogger) Debugw(msg string, kv ...interface{}) { l.SugaredLogger.Debugw(msg, kv...) }
func (l *checkpointLogger) Infow(msg string, kv ...interface{})  { l.SugaredLogger.Infow(msg, kv...) }
func (l *checkpointLogger) Warnw(msg string, kv ...interface{})  { l.SugaredLogger.Warnw(msg, kv...) }
func (l *checkpointLogger) Errorw(msg string, kv ...interface{}) { l.SugaredLogger.Errorw(msg, kv...) }
