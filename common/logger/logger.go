// Package logger provides the leveled logging surface for the QA core.
// It wraps log/slog so every package logs through one configurable handler.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	level  = new(slog.LevelVar)
	logger atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelInfo)
	logger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// Setup replaces the package handler. Format is "text" or "json".
func Setup(w io.Writer, format, levelName string) error {
	lvl, err := parseLevel(levelName)
	if err != nil {
		return err
	}
	level.Set(lvl)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("logger: unknown format %q", format)
	}
	logger.Store(slog.New(h))
	return nil
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", name)
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...any) { logger.Load().Debug(fmt.Sprintf(format, args...)) }

// Infof logs a formatted info message.
func Infof(format string, args ...any) { logger.Load().Info(fmt.Sprintf(format, args...)) }

// Warnf logs a formatted warning.
func Warnf(format string, args ...any) { logger.Load().Warn(fmt.Sprintf(format, args...)) }

// Errorf logs a formatted error.
func Errorf(format string, args ...any) { logger.Load().Error(fmt.Sprintf(format, args...)) }
