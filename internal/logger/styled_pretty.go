package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/sebastien/thor/theme"
)

// PrettyStyledLogger implements StyledLogger with pterm colouring, for
// interactive terminal sessions (the thor CLI, mainly).
type PrettyStyledLogger struct {
	logger *slog.Logger
	Theme  *theme.Theme
}

func NewPrettyStyledLogger(logger *slog.Logger, appTheme *theme.Theme) *PrettyStyledLogger {
	return &PrettyStyledLogger{logger: logger, Theme: appTheme}
}

func (sl *PrettyStyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *PrettyStyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *PrettyStyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *PrettyStyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *PrettyStyledLogger) InfoWithTarget(msg string, target string, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s", msg, sl.Theme.Target.Sprint(target)), args...)
}

func (sl *PrettyStyledLogger) InfoWithStatus(msg string, status int, args ...any) {
	colour := sl.Theme.StatusOK
	if status >= 400 {
		colour = sl.Theme.StatusErr
	}
	styled := fmt.Sprintf("%s %s", msg, pterm.Style{colour}.Sprint(status))
	sl.logger.Info(styled, args...)
}

func (sl *PrettyStyledLogger) InfoWithCount(msg string, count int, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s", msg, sl.Theme.Counts.Sprint("(", count, ")")), args...)
}

func (sl *PrettyStyledLogger) WarnWithTarget(msg string, target string, args ...any) {
	sl.logger.Warn(fmt.Sprintf("%s %s", msg, sl.Theme.Target.Sprint(target)), args...)
}

func (sl *PrettyStyledLogger) ErrorWithTarget(msg string, target string, args ...any) {
	sl.logger.Error(fmt.Sprintf("%s %s", msg, sl.Theme.Target.Sprint(target)), args...)
}

func (sl *PrettyStyledLogger) With(args ...any) StyledLogger {
	return &PrettyStyledLogger{logger: sl.logger.With(args...), Theme: sl.Theme}
}

func (sl *PrettyStyledLogger) GetUnderlying() *slog.Logger { return sl.logger }
