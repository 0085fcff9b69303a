package core

import (
	"context"
	"testing"
	"time"
)

func TestCfgxConfigProvider_ParsesDurationStrings(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"environment": "staging",
		"signing": map[string]any{
			"secret": "file-secret",
		},
		"delivery": map[string]any{
			"timeout": "3s",
		},
		"retry": map[string]any{
			"max_retries": 2,
			"max_delay":   "30m",
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Delivery.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.Delivery.Timeout)
	}
	if cfg.Retry.MaxDelay != 30*time.Minute || cfg.Retry.MaxRetries != 2 {
		t.Fatalf("unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Retry.BaseDelay != time.Minute {
		t.Fatalf("expected defaults for unset keys, got %s", cfg.Retry.BaseDelay)
	}
}

func TestCfgxConfigProvider_RejectsBadDuration(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"verification": map[string]any{"delay": "soon"},
	}})
	if _, err := provider.Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected invalid duration error")
	}
}

func TestGoOptionsResolver_RuntimeWins(t *testing.T) {
	defaults := DefaultConfig()
	loaded := defaults
	loaded.Signing.Secret = "from-file"
	loaded.Retry.BatchSize = 20

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, Config{
		Signing: SigningConfig{Secret: "from-runtime"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Signing.Secret != "from-runtime" {
		t.Fatalf("expected runtime secret, got %q", resolved.Signing.Secret)
	}
	if resolved.Retry.BatchSize != 20 {
		t.Fatalf("expected file batch size, got %d", resolved.Retry.BatchSize)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected development defaults valid: %v", err)
	}
	cfg.Environment = "production"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected production without secret to fail")
	}
	cfg.Signing.AllowDevelopmentSecret = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected explicit development secret opt-in to pass: %v", err)
	}
	cfg.Signing.Secret = "s"
	cfg.Retry.MaxDelay = time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected max delay below base delay to fail")
	}
}
