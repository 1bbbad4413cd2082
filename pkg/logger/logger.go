// Package logger provides component-scoped structured logging.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel = zapcore.Level

const (
	DEBUG = zapcore.DebugLevel
	INFO  = zapcore.InfoLevel
	WARN  = zapcore.WarnLevel
	ERROR = zapcore.ErrorLevel
)

var (
	mu    sync.RWMutex
	base  = zap.NewNop()
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init replaces the process logger. format is "json" or "console".
func Init(levelName, format string) error {
	lvl, err := ParseLevel(levelName)
	if err != nil {
		return err
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console", "text":
		cfg = zap.NewDevelopmentConfig()
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}
	level.SetLevel(lvl)
	cfg.Level = level
	cfg.DisableStacktrace = true

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	SetLogger(l)
	return nil
}

// SetLogger swaps the backing zap logger. Tests use zaptest/observer cores.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	mu.Unlock()
}

func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func SetLevel(lvl LogLevel) {
	level.SetLevel(lvl)
}

func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unsupported log level %q", name)
	}
}

func DebugC(component, message string) { logAt(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logAt(INFO, component, message, nil) }
func WarnC(component, message string)  { logAt(WARN, component, message, nil) }
func ErrorC(component, message string) { logAt(ERROR, component, message, nil) }

func DebugCF(component, message string, fields map[string]any) {
	logAt(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]any) {
	logAt(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]any) {
	logAt(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]any) {
	logAt(ERROR, component, message, fields)
}

func logAt(lvl LogLevel, component, message string, fields map[string]any) {
	mu.RLock()
	l := base
	mu.RUnlock()

	ce := l.Check(lvl, message)
	if ce == nil {
		return
	}
	zf := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		zf = append(zf, zap.String("component", component))
	}
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	ce.Write(zf...)
}
