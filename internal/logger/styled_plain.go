package logger

import (
	"fmt"
	"log/slog"
)

// PlainStyledLogger implements StyledLogger without ANSI formatting, for
// JSON/file output where colour codes would just be noise.
type PlainStyledLogger struct {
	logger *slog.Logger
}

func NewPlainStyledLogger(logger *slog.Logger) *PlainStyledLogger {
	return &PlainStyledLogger{logger: logger}
}

func (sl *PlainStyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *PlainStyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *PlainStyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *PlainStyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *PlainStyledLogger) InfoWithTarget(msg string, target string, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s", msg, target), args...)
}

func (sl *PlainStyledLogger) InfoWithStatus(msg string, status int, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %d", msg, status), args...)
}

func (sl *PlainStyledLogger) InfoWithCount(msg string, count int, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s (%d)", msg, count), args...)
}

func (sl *PlainStyledLogger) WarnWithTarget(msg string, target string, args ...any) {
	sl.logger.Warn(fmt.Sprintf("%s %s", msg, target), args...)
}

func (sl *PlainStyledLogger) ErrorWithTarget(msg string, target string, args ...any) {
	sl.logger.Error(fmt.Sprintf("%s %s", msg, target), args...)
}

func (sl *PlainStyledLogger) With(args ...any) StyledLogger {
	return &PlainStyledLogger{logger: sl.logger.With(args...)}
}

func (sl *PlainStyledLogger) GetUnderlying() *slog.Logger { return sl.logger }
