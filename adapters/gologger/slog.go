package gologger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// SlogProvider hands out glog loggers backed by one slog handler, each tagged
// with its logger name.
type SlogProvider struct {
	handler slog.Handler
}

func NewSlogProvider(handler slog.Handler) *SlogProvider {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	return &SlogProvider{handler: handler}
}

// NewConsoleProvider writes text or JSON records to stderr at level.
func NewConsoleProvider(format string, level string) *SlogProvider {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return NewSlogProvider(slog.NewJSONHandler(os.Stderr, opts))
	}
	return NewSlogProvider(slog.NewTextHandler(os.Stderr, opts))
}

func (p *SlogProvider) GetLogger(name string) glog.Logger {
	if p == nil {
		return glog.Nop()
	}
	logger := slog.New(p.handler)
	if name = strings.TrimSpace(name); name != "" {
		logger = logger.With("logger", name)
	}
	return &slogLogger{logger: logger, ctx: context.Background()}
}

// ParseLevel maps trace, debug, info, warn and error onto slog levels;
// trace is one step below debug.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return levelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	levelTrace = slog.LevelDebug - 4
	levelFatal = slog.LevelError + 4
)

type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func (l *slogLogger) Trace(msg string, args ...any) { l.logger.Log(l.ctx, levelTrace, msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) {
	l.logger.Log(l.ctx, slog.LevelDebug, msg, args...)
}
func (l *slogLogger) Info(msg string, args ...any) { l.logger.Log(l.ctx, slog.LevelInfo, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any) { l.logger.Log(l.ctx, slog.LevelWarn, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) {
	l.logger.Log(l.ctx, slog.LevelError, msg, args...)
}

// Fatal logs at a level above error. It does not exit; the caller owns the
// process lifecycle.
func (l *slogLogger) Fatal(msg string, args ...any) { l.logger.Log(l.ctx, levelFatal, msg, args...) }

func (l *slogLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &slogLogger{logger: l.logger, ctx: ctx}
}

var (
	_ glog.Logger         = (*slogLogger)(nil)
	_ glog.LoggerProvider = (*SlogProvider)(nil)
)
