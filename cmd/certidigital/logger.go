package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	glog "github.com/goliatone/go-logger/glog"
)

const levelTrace = slog.LevelDebug - 4

// textLogger writes key/value records to the terminal.
type textLogger struct {
	ctx    context.Context
	logger *slog.Logger
}

func newLogger(w io.Writer, debug bool) glog.Logger {
	level := slog.LevelInfo
	if debug {
		level = levelTrace
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &textLogger{ctx: context.Background(), logger: slog.New(handler)}
}

func (l *textLogger) Trace(msg string, args ...any) { l.logger.Log(l.ctx, levelTrace, msg, args...) }
func (l *textLogger) Debug(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *textLogger) Info(msg string, args ...any)  { l.logger.InfoContext(l.ctx, msg, args...) }
func (l *textLogger) Warn(msg string, args ...any)  { l.logger.WarnContext(l.ctx, msg, args...) }
func (l *textLogger) Error(msg string, args ...any) { l.logger.ErrorContext(l.ctx, msg, args...) }

func (l *textLogger) Fatal(msg string, args ...any) {
	l.logger.ErrorContext(l.ctx, msg, args...)
	os.Exit(exitFailure)
}

func (l *textLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &textLogger{ctx: ctx, logger: l.logger}
}

var _ glog.Logger = (*textLogger)(nil)
