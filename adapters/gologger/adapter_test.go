package gologger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve("syndication", provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve("syndication", nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve("syndication", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestComponentLoggerUsesNamedProviderLogger(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &namingProvider{logger: providerLogger}

	logger := ComponentLogger(provider, nil, ".worker.")
	logger.Info("tick")
	if provider.lastName != "syndication.worker" {
		t.Fatalf("expected syndication.worker logger name, got %q", provider.lastName)
	}
	if providerLogger.lastInfo.msg != "tick" {
		t.Fatalf("expected message through named logger")
	}

	if ComponentLogger(nil, nil, "cli") == nil {
		t.Fatalf("expected nop fallback")
	}
}

type namingProvider struct {
	logger   *capturingLogger
	lastName string
}

func (p *namingProvider) GetLogger(name string) glog.Logger {
	p.lastName = name
	return p.logger
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}

func TestSlogProviderTagsLoggerName(t *testing.T) {
	var buf bytes.Buffer
	provider := NewSlogProvider(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: ParseLevel("debug")}))
	logger := ComponentLogger(provider, nil, "jobs")
	logger.Debug("job started", "job_id", "syndication.notify")
	logger.Trace("hidden below debug")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("expected exactly one json record, got %q: %v", buf.String(), err)
	}
	if record["logger"] != "syndication.jobs" || record["msg"] != "job started" || record["job_id"] != "syndication.notify" {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for input, expected := range cases {
		if got := ParseLevel(input); got != expected {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, expected)
		}
	}
	if ParseLevel("trace") >= slog.LevelDebug {
		t.Fatalf("expected trace below debug")
	}
}
