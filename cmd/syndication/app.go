package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	syndication "github.com/goliatone/go-syndication"
	"github.com/goliatone/go-syndication/adapters/gologger"
	"github.com/goliatone/go-syndication/adapters/redisalert"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// app is the runtime plus the handles that must be closed with it.
type app struct {
	runtime *syndication.Runtime
	client  *persistence.Client
	redis   *redis.Client
	logs    *gologger.SlogProvider
}

func (a *app) Close() {
	if a == nil {
		return
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.client != nil {
		_ = a.client.Close()
	}
}

func loadConfig(ctx context.Context) (syndication.Config, error) {
	var raw map[string]any
	if path := strings.TrimSpace(viper.GetString("config")); path != "" {
		loaded, err := syndication.LoadConfigFile(path)
		if err != nil {
			return syndication.Config{}, err
		}
		raw = loaded
	}
	overrides := syndication.Config{}
	overrides.Environment = viper.GetString("environment")
	overrides.Signing.Secret = viper.GetString("signing-secret")
	return syndication.ResolveConfig(ctx, raw, overrides)
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logs := gologger.NewConsoleProvider(viper.GetString("log-format"), viper.GetString("log-level"))

	client, target, err := openDatabase(driverFlag(), dsnFlag())
	if err != nil {
		return nil, err
	}
	a := &app{client: client, logs: logs}
	if err := migrateDatabase(ctx, client, target); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	runtimeCfg := syndication.RuntimeConfig{
		Pipeline:       cfg,
		InboundSecret:  viper.GetString("inbound-secret"),
		RedisChannel:   viper.GetString("redis-channel"),
		LoggerProvider: logs,
	}
	if redisURL := strings.TrimSpace(viper.GetString("redis-url")); redisURL != "" {
		rdb, err := redisalert.NewClient(ctx, redisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = rdb
		runtimeCfg.Redis = rdb
	}

	rt, err := syndication.NewRuntime(client.DB(), runtimeCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runtime = rt
	return a, nil
}

func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func driverFlag() string {
	return viper.GetString("driver")
}

func dsnFlag() string {
	return viper.GetString("dsn")
}

func outputJSON() bool {
	return viper.GetBool("json")
}

func stdout() *os.File {
	return os.Stdout
}
