package syndication

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveConfig_LayersFileAndOverrides(t *testing.T) {
	raw, err := DecodeConfigYAML([]byte(`
environment: production
signing:
  secret: file-secret
  site_secrets:
    site-a: site-a-secret
verification:
  delay: 90s
retry:
  batch_size: 25
  schedule: "*/10 * * * *"
`))
	if err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	cfg, err := ResolveConfig(context.Background(), raw, Config{Signing: SigningConfig{Secret: "env-secret"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Signing.Secret != "env-secret" {
		t.Fatalf("expected override secret, got %q", cfg.Signing.Secret)
	}
	if cfg.Signing.SiteSecrets["site-a"] != "site-a-secret" {
		t.Fatalf("expected per-site secret from file, got %#v", cfg.Signing.SiteSecrets)
	}
	if cfg.Verification.Delay != 90*time.Second || cfg.Retry.BatchSize != 25 || cfg.Retry.Schedule != "*/10 * * * *" {
		t.Fatalf("unexpected file values: %+v %+v", cfg.Verification, cfg.Retry)
	}
	if cfg.Verification.Deadline != 5*time.Minute {
		t.Fatalf("expected default deadline, got %s", cfg.Verification.Deadline)
	}
}

func TestResolveConfig_ProductionRequiresSecret(t *testing.T) {
	raw := map[string]any{"environment": "production"}
	if _, err := ResolveConfig(context.Background(), raw, Config{}); err == nil {
		t.Fatalf("expected missing signing secret to fail validation")
	}
}

func TestLoadConfigFile(t *testing.T) {
	raw, err := LoadConfigFile("")
	if err != nil || len(raw) != 0 {
		t.Fatalf("expected empty map for empty path, got %#v %v", raw, err)
	}
	path := filepath.Join(t.TempDir(), "syndication.yaml")
	if err := os.WriteFile(path, []byte("service_name: partner-sync\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	raw, err = LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if raw["service_name"] != "partner-sync" {
		t.Fatalf("unexpected raw config: %#v", raw)
	}
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
