// internal/logger/styled.go
package logger

import (
	"log/slog"

	"github.com/sebastien/thor/theme"
)

// StyledLogger is the logging surface used across the engine. It behaves
// like a slog.Logger for everyday calls, with a handful of helpers for
// colourising the request/response details the pool and exchange emit most
// often (endpoint targets, status codes, retry counts).
type StyledLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	InfoWithTarget(msg string, target string, args ...any)
	InfoWithStatus(msg string, status int, args ...any)
	InfoWithCount(msg string, count int, args ...any)
	WarnWithTarget(msg string, target string, args ...any)
	ErrorWithTarget(msg string, target string, args ...any)

	With(args ...any) StyledLogger
	GetUnderlying() *slog.Logger
}

// NewWithTheme creates both a regular slog.Logger and a StyledLogger backed
// by it, picking the pretty or plain implementation based on cfg.PrettyLogs.
func NewWithTheme(cfg *Config) (*slog.Logger, StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)

	var styled StyledLogger
	if cfg.PrettyLogs {
		styled = NewPrettyStyledLogger(logger, appTheme)
	} else {
		styled = NewPlainStyledLogger(logger)
	}

	return logger, styled, cleanup, nil
}
