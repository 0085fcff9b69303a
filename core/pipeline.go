package core

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Pipeline runs the webhook delivery and removal verification jobs. It holds
// no mutable state of its own; every collaborator is injected.
type Pipeline struct {
	config        Config
	logger        Logger
	metrics       MetricsRecorder
	errorMapper   ErrorMapper
	distributions DistributionStore
	sites         SiteRegistry
	events        WebhookEventStore
	signer        PayloadSigner
	deliverer     WebhookDeliverer
	prober        RemovalProber
	scheduler     JobScheduler
	alerts        AlertPublisher
	backoff       BackoffPolicy
	now           func() time.Time
}

func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	builder := defaultPipelineBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("syndication", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("syndication"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	missing := make([]string, 0, 7)
	if builder.distributions == nil {
		missing = append(missing, "distribution store")
	}
	if builder.sites == nil {
		missing = append(missing, "site registry")
	}
	if builder.events == nil {
		missing = append(missing, "webhook event store")
	}
	if builder.signer == nil {
		missing = append(missing, "payload signer")
	}
	if builder.deliverer == nil {
		missing = append(missing, "webhook deliverer")
	}
	if builder.prober == nil {
		missing = append(missing, "removal prober")
	}
	if builder.scheduler == nil {
		missing = append(missing, "job scheduler")
	}
	if len(missing) > 0 {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: pipeline dependencies required: %v", missing))
	}

	pipeline := &Pipeline{
		config:        finalConfig,
		logger:        logger,
		metrics:       builder.metricsRecorder,
		errorMapper:   builder.errorMapper,
		distributions: builder.distributions,
		sites:         builder.sites,
		events:        builder.events,
		signer:        builder.signer,
		deliverer:     builder.deliverer,
		prober:        builder.prober,
		scheduler:     builder.scheduler,
		alerts:        builder.alerts,
		backoff: BackoffPolicy{
			Base: finalConfig.Retry.BaseDelay,
			Max:  finalConfig.Retry.MaxDelay,
		},
		now: builder.clock,
	}
	if pipeline.alerts == nil {
		pipeline.alerts = LogAlertPublisher{Logger: logger}
	}
	if finalConfig.Signing.Secret == "" && finalConfig.DevelopmentSecretAllowed() {
		pipeline.logWarn(context.Background(), "no signing secret configured; development fallback secret is in use", map[string]any{
			"environment": finalConfig.Environment,
		})
	}
	return pipeline, nil
}

func (p *Pipeline) Config() Config {
	if p == nil {
		return Config{}
	}
	return p.config
}

func (p *Pipeline) Backoff() BackoffPolicy {
	if p == nil {
		return DefaultBackoffPolicy()
	}
	return p.backoff
}

func (p *Pipeline) mapError(err error) error {
	if err == nil {
		return nil
	}
	return mapBuildError(p.errorMapper, err)
}

func (p *Pipeline) clock() time.Time {
	if p == nil || p.now == nil {
		return time.Now().UTC()
	}
	return p.now().UTC()
}

func (p *Pipeline) ensureReady() error {
	if p == nil {
		return fmt.Errorf("core: pipeline is nil")
	}
	return nil
}

// LogAlertPublisher is the fallback publisher; it only writes the alert to
// the error log.
type LogAlertPublisher struct {
	Logger Logger
}

func (l LogAlertPublisher) PublishComplianceAlert(_ context.Context, alert ComplianceAlert) error {
	logger := glog.Ensure(l.Logger)
	failed := make([]string, 0, len(alert.FailedSites))
	for _, site := range alert.FailedSites {
		failed = append(failed, site.SiteID)
	}
	logger.Error("compliance deadline breached",
		"story_id", alert.StoryID,
		"failed_sites", failed,
		"elapsed_minutes", alert.ElapsedMinutes,
	)
	return nil
}

// MultiAlertPublisher fans one alert out to a durable sink and any number of
// best-effort sinks. Only the durable error is returned, so a flaky optional
// sink never makes the verify job retry and re-send alerts elsewhere.
type MultiAlertPublisher struct {
	Durable  AlertPublisher
	Optional []AlertPublisher
	Logger   Logger
}

func (m MultiAlertPublisher) PublishComplianceAlert(ctx context.Context, alert ComplianceAlert) error {
	if m.Durable != nil {
		if err := m.Durable.PublishComplianceAlert(ctx, alert); err != nil {
			return err
		}
	}
	logger := glog.Ensure(m.Logger)
	for _, publisher := range m.Optional {
		if publisher == nil {
			continue
		}
		if err := publisher.PublishComplianceAlert(ctx, alert); err != nil {
			logger.Warn("optional alert sink failed",
				"story_id", alert.StoryID,
				"sink", fmt.Sprintf("%T", publisher),
				"error", err,
			)
		}
	}
	return nil
}
