package syndication

import (
	"context"
	"fmt"
	"os"

	"github.com/goliatone/go-syndication/core"
	"gopkg.in/yaml.v3"
)

// DecodeConfigYAML turns a YAML document into the raw map the config
// provider layers over the defaults. Durations may be written as "30s".
func DecodeConfigYAML(content []byte) (map[string]any, error) {
	raw := map[string]any{}
	if len(content) == 0 {
		return raw, nil
	}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("syndication: decode config yaml: %w", err)
	}
	return raw, nil
}

// LoadConfigFile reads path, or returns an empty map when path is empty.
func LoadConfigFile(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("syndication: read config %s: %w", path, err)
	}
	return DecodeConfigYAML(content)
}

// ResolveConfig layers defaults, the raw file values and the runtime
// overrides, in that order of precedence, and validates the result.
func ResolveConfig(ctx context.Context, raw map[string]any, overrides Config) (Config, error) {
	defaults := core.DefaultConfig()
	loaded, err := core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: raw}).Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return core.GoOptionsResolver{}.Resolve(defaults, loaded, overrides)
}
