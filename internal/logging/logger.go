// Package logging builds the logr.Logger used by the stacat command.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a zap-backed logger writing to stderr at the given level.
func New(level string) (logr.Logger, error) {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(level string, w io.Writer) (logr.Logger, error) {
	lower := strings.ToLower(level)
	encCfg := zap.NewProductionEncoderConfig()
	var zapLevel zapcore.Level
	switch lower {
	case "debug":
		encCfg = zap.NewDevelopmentEncoderConfig()
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return logr.Logger{}, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	atomic := zap.NewAtomicLevelAt(zapLevel)
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), atomic)
	return zapr.NewLogger(zap.New(core)), nil
}
