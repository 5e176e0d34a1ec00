// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

// Package log wraps go.uber.org/zap behind the small, global-logger surface
// the rest of this module calls through (Info/Warn/Error/With).
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
)

func init() {
	global, _ = zap.NewProduction()
}

// InitLogger replaces the global logger, e.g. with a development logger
// configured from the parsed config.
func InitLogger(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = logger
}

func logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Info(msg string, fields ...zap.Field)  { logger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger().Error(msg, fields...) }
func Debug(msg string, fields ...zap.Field) { logger().Debug(msg, fields...) }

// With returns a logger pinned to the given fields, for call sites that log
// several related messages (e.g. a per-table rebuild) and want to avoid
// repeating context fields on every call.
func With(fields ...zap.Field) *Logger {
	return &Logger{l: logger().With(fields...)}
}

type Logger struct {
	l *zap.Logger
}

func (l *Logger) Info(msg string, fields ...zap.Field)  { l.l.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.l.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.l.Error(msg, fields...) }
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.l.Debug(msg, fields...) }
