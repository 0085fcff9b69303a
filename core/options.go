package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type pipelineBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	distributions   DistributionStore
	sites           SiteRegistry
	events          WebhookEventStore
	signer          PayloadSigner
	deliverer       WebhookDeliverer
	prober          RemovalProber
	scheduler       JobScheduler
	alerts          AlertPublisher
	clock           func() time.Time
}

type Option func(*pipelineBuilder)

func WithLogger(logger Logger) Option {
	return func(b *pipelineBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *pipelineBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *pipelineBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *pipelineBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *pipelineBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *pipelineBuilder) {
		b.optionsResolver = resolver
	}
}

func WithDistributionStore(store DistributionStore) Option {
	return func(b *pipelineBuilder) {
		b.distributions = store
	}
}

func WithSiteRegistry(registry SiteRegistry) Option {
	return func(b *pipelineBuilder) {
		b.sites = registry
	}
}

func WithWebhookEventStore(store WebhookEventStore) Option {
	return func(b *pipelineBuilder) {
		b.events = store
	}
}

func WithPayloadSigner(signer PayloadSigner) Option {
	return func(b *pipelineBuilder) {
		b.signer = signer
	}
}

func WithWebhookDeliverer(deliverer WebhookDeliverer) Option {
	return func(b *pipelineBuilder) {
		b.deliverer = deliverer
	}
}

func WithRemovalProber(prober RemovalProber) Option {
	return func(b *pipelineBuilder) {
		b.prober = prober
	}
}

func WithJobScheduler(scheduler JobScheduler) Option {
	return func(b *pipelineBuilder) {
		b.scheduler = scheduler
	}
}

func WithAlertPublisher(publisher AlertPublisher) Option {
	return func(b *pipelineBuilder) {
		b.alerts = publisher
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *pipelineBuilder) {
		b.clock = clock
	}
}

func defaultPipelineBuilder(runtime Config) pipelineBuilder {
	loggerProvider, logger := glog.Resolve("syndication", nil, nil)
	return pipelineBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           time.Now,
	}
}

// StaticRawConfigLoader serves a fixed raw map, typically decoded from a
// YAML file by the caller.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	return copyAnyMap(l.Values), nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	raw, err = normalizeDurations(raw, "")
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)
	putString(layer, "environment", cfg.Environment, includeZero)

	signing := map[string]any{}
	putString(signing, "secret", cfg.Signing.Secret, includeZero)
	if includeZero || len(cfg.Signing.SiteSecrets) > 0 {
		secrets := make(map[string]any, len(cfg.Signing.SiteSecrets))
		for siteID, secret := range cfg.Signing.SiteSecrets {
			secrets[siteID] = secret
		}
		signing["site_secrets"] = secrets
	}
	putBool(signing, "allow_development_secret", cfg.Signing.AllowDevelopmentSecret, includeZero)
	putSection(layer, "signing", signing)

	delivery := map[string]any{}
	putDuration(delivery, "timeout", cfg.Delivery.Timeout, includeZero)
	putInt(delivery, "response_body_limit", cfg.Delivery.ResponseBodyLimit, includeZero)
	putString(delivery, "user_agent", cfg.Delivery.UserAgent, includeZero)
	putString(delivery, "signature_header", cfg.Delivery.SignatureHeader, includeZero)
	putString(delivery, "event_header", cfg.Delivery.EventHeader, includeZero)
	putString(delivery, "delivery_header", cfg.Delivery.DeliveryHeader, includeZero)
	putSection(layer, "delivery", delivery)

	verification := map[string]any{}
	putDuration(verification, "delay", cfg.Verification.Delay, includeZero)
	putDuration(verification, "probe_timeout", cfg.Verification.ProbeTimeout, includeZero)
	putDuration(verification, "deadline", cfg.Verification.Deadline, includeZero)
	putBool(verification, "recheck_at_deadline", cfg.Verification.RecheckAtDeadline, includeZero)
	putSection(layer, "verification", verification)

	retry := map[string]any{}
	putInt(retry, "max_retries", cfg.Retry.MaxRetries, includeZero)
	putInt(retry, "batch_size", cfg.Retry.BatchSize, includeZero)
	putDuration(retry, "base_delay", cfg.Retry.BaseDelay, includeZero)
	putDuration(retry, "max_delay", cfg.Retry.MaxDelay, includeZero)
	putDuration(retry, "claim_lease", cfg.Retry.ClaimLease, includeZero)
	putString(retry, "schedule", cfg.Retry.Schedule, includeZero)
	putSection(layer, "retry", retry)

	jobs := map[string]any{}
	putDuration(jobs, "poll_interval", cfg.Jobs.PollInterval, includeZero)
	putInt(jobs, "max_attempts", cfg.Jobs.MaxAttempts, includeZero)
	putDuration(jobs, "max_delay", cfg.Jobs.MaxDelay, includeZero)
	putDuration(jobs, "lease", cfg.Jobs.Lease, includeZero)
	putSection(layer, "jobs", jobs)
	return layer
}

func putString(layer map[string]any, key, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putInt(layer map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putBool(layer map[string]any, key string, value bool, includeZero bool) {
	if includeZero || value {
		layer[key] = value
	}
}

func putDuration(layer map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}

var durationKeys = map[string]struct{}{
	"delivery.timeout":           {},
	"verification.delay":         {},
	"verification.probe_timeout": {},
	"verification.deadline":      {},
	"retry.base_delay":           {},
	"retry.max_delay":            {},
	"retry.claim_lease":          {},
	"jobs.poll_interval":         {},
	"jobs.max_delay":             {},
	"jobs.lease":                 {},
}

// normalizeDurations turns "10s"-style strings at known duration keys into
// time.Duration values so file and env sources decode like typed defaults.
func normalizeDurations(raw map[string]any, prefix string) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch typed := value.(type) {
		case map[string]any:
			nested, err := normalizeDurations(typed, path)
			if err != nil {
				return nil, err
			}
			out[key] = nested
			continue
		case string:
			if _, ok := durationKeys[path]; ok {
				parsed, err := time.ParseDuration(strings.TrimSpace(typed))
				if err != nil {
					return nil, fmt.Errorf("core: invalid duration for %s: %w", path, err)
				}
				out[key] = parsed
				continue
			}
		}
		out[key] = value
	}
	return out, nil
}
