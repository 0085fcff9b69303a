package syndication

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-syndication/adapters/gojob"
	"github.com/goliatone/go-syndication/adapters/gologger"
	"github.com/goliatone/go-syndication/adapters/prommetrics"
	"github.com/goliatone/go-syndication/adapters/redisalert"
	"github.com/goliatone/go-syndication/core"
	"github.com/goliatone/go-syndication/inbound"
	"github.com/goliatone/go-syndication/jobs"
	sqlstore "github.com/goliatone/go-syndication/store/sql"
	"github.com/goliatone/go-syndication/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

const DefaultSiteCacheTTL = 30 * time.Second

type RuntimeConfig struct {
	Pipeline Config

	// HTTPClient carries outbound deliveries and removal probes. The
	// per-request timeouts come from Pipeline.Delivery and Verification.
	HTTPClient webhooks.HTTPDoer

	// InboundSecret verifies signatures on inbound events. Empty disables
	// verification, which is only accepted in development.
	InboundSecret string

	// Redis, when set, receives compliance alerts on RedisChannel in
	// addition to the log and the alert table.
	Redis        redisalert.Client
	RedisChannel string

	SiteCacheTTL time.Duration

	// Registerer receives the Prometheus collectors. Nil uses
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	LoggerProvider glog.LoggerProvider
	Logger         glog.Logger
	Clock          func() time.Time
}

// Runtime is the fully wired service: stores, pipeline, job worker,
// scheduler and inbound dispatcher over one database.
type Runtime struct {
	Config     Config
	Stores     *sqlstore.RepositoryFactory
	Sites      *sqlstore.CachedSiteRegistry
	Pipeline   *core.Pipeline
	Facade     *Facade
	Handlers   *jobs.Handlers
	Runner     *jobs.Runner
	Triggers   *jobs.Triggers
	Cron       *jobs.Cron
	Dispatcher *inbound.Dispatcher
	Metrics    *prommetrics.Recorder
}

func NewRuntime(db *bun.DB, cfg RuntimeConfig) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("syndication: bun db is required")
	}
	pipelineCfg := cfg.Pipeline
	if err := pipelineCfg.Validate(); err != nil {
		return nil, err
	}
	logger := gologger.ComponentLogger(cfg.LoggerProvider, cfg.Logger, "runtime")
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	stores, err := sqlstore.NewRepositoryFactoryFromDB(db,
		sqlstore.WithJobLease(pipelineCfg.Jobs.Lease),
		sqlstore.WithJobClock(clock),
	)
	if err != nil {
		return nil, err
	}

	cacheCfg := repositorycache.DefaultConfig()
	cacheCfg.TTL = cfg.SiteCacheTTL
	if cacheCfg.TTL <= 0 {
		cacheCfg.TTL = DefaultSiteCacheTTL
	}
	cacheService, err := repositorycache.NewCacheService(cacheCfg)
	if err != nil {
		return nil, fmt.Errorf("syndication: site cache: %w", err)
	}
	sites, err := sqlstore.NewCachedSiteRegistry(stores.SiteStore(), cacheService)
	if err != nil {
		return nil, err
	}

	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	metrics := prommetrics.NewRecorder(registerer)
	metrics.OnError(func(err error) {
		logger.Warn("metric registration failed", "error", err)
	})

	alertLogger := gologger.ComponentLogger(cfg.LoggerProvider, cfg.Logger, "alerts")
	alerts := core.MultiAlertPublisher{
		Durable:  stores.ComplianceAlertStore(),
		Optional: []core.AlertPublisher{core.LogAlertPublisher{Logger: alertLogger}},
		Logger:   alertLogger,
	}
	if cfg.Redis != nil {
		publisher, err := redisalert.NewPublisher(cfg.Redis, cfg.RedisChannel)
		if err != nil {
			return nil, err
		}
		alerts.Optional = append(alerts.Optional, publisher)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	client := webhooks.NewClient(httpClient, webhooks.ClientConfigFrom(pipelineCfg))
	signer := webhooks.NewSigner(webhooks.NewSecretResolver(pipelineCfg, logger))

	pipeline, err := core.NewPipeline(pipelineCfg,
		core.WithLoggerProvider(cfg.LoggerProvider),
		core.WithLogger(cfg.Logger),
		core.WithMetricsRecorder(metrics),
		core.WithDistributionStore(stores.DistributionStore()),
		core.WithSiteRegistry(sites),
		core.WithWebhookEventStore(stores.WebhookEventStore()),
		core.WithPayloadSigner(signer),
		core.WithWebhookDeliverer(client),
		core.WithRemovalProber(client),
		core.WithJobScheduler(stores.JobQueueStore()),
		core.WithAlertPublisher(alerts),
		core.WithClock(clock),
	)
	if err != nil {
		return nil, err
	}

	facade, err := NewFacade(FacadeDependencies{
		Service:       pipeline,
		SiteWriter:    sites,
		SiteReader:    stores.SiteStore(),
		Distributions: stores.DistributionStore(),
		WebhookEvents: stores.WebhookEventStore(),
		Alerts:        stores.ComplianceAlertStore(),
	})
	if err != nil {
		return nil, err
	}

	handlers, err := jobs.NewSyndicationHandlers(pipeline)
	if err != nil {
		return nil, err
	}
	jobLogger := gologger.ComponentLogger(cfg.LoggerProvider, cfg.Logger, "jobs")
	runner, err := jobs.NewRunner(
		gojob.NewDequeuerAdapter(stores.JobQueueStore()),
		handlers,
		jobs.RunnerConfig{
			PollInterval: pipelineCfg.Jobs.PollInterval,
			MaxAttempts:  pipelineCfg.Jobs.MaxAttempts,
			Backoff: worker.BackoffConfig{
				Strategy:    worker.BackoffExponential,
				Interval:    pipelineCfg.Retry.BaseDelay,
				MaxInterval: pipelineCfg.Jobs.MaxDelay,
			},
		},
		jobs.WithRunnerHooks(gojob.NewWorkerHookAdapter(jobs.NewObservingHook(jobLogger, metrics))),
		jobs.WithRunnerLogger(jobLogger),
		jobs.WithRunnerClock(clock),
	)
	if err != nil {
		return nil, err
	}

	enqueuer := gojob.NewEnqueuerAdapter(stores.JobQueueStore())
	triggers, err := jobs.NewTriggers(enqueuer, stores.JobQueueStore(),
		jobs.WithVerificationDelay(pipelineCfg.Verification.Delay),
		jobs.WithTriggerClock(clock),
	)
	if err != nil {
		return nil, err
	}
	sweep, err := jobs.NewCron(enqueuer, jobs.CronConfig{
		Spec:      pipelineCfg.Retry.Schedule,
		BatchSize: pipelineCfg.Retry.BatchSize,
	}, jobLogger)
	if err != nil {
		return nil, err
	}

	var verifier inbound.Verifier
	if secret := strings.TrimSpace(cfg.InboundSecret); secret != "" {
		verifier = inbound.SignatureVerifier{Secret: secret}
	} else if !pipelineCfg.IsDevelopment() {
		return nil, fmt.Errorf("syndication: inbound secret is required in environment %q", pipelineCfg.Environment)
	} else {
		logger.Warn("inbound signature verification disabled", "environment", pipelineCfg.Environment)
	}
	dispatcher, err := inbound.NewSyndicationDispatcher(triggers, verifier)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Config:     pipelineCfg,
		Stores:     stores,
		Sites:      sites,
		Pipeline:   pipeline,
		Facade:     facade,
		Handlers:   handlers,
		Runner:     runner,
		Triggers:   triggers,
		Cron:       sweep,
		Dispatcher: dispatcher,
		Metrics:    metrics,
	}, nil
}

// RunWorker starts the retry sweep schedule and drains the job queue until
// ctx is cancelled.
func (r *Runtime) RunWorker(ctx context.Context) error {
	if r == nil || r.Runner == nil {
		return fmt.Errorf("syndication: runtime is not configured")
	}
	if r.Cron != nil {
		r.Cron.Start()
		defer func() {
			<-r.Cron.Stop().Done()
		}()
	}
	if err := r.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Drain runs due jobs until the queue is empty or limit jobs have run.
func (r *Runtime) Drain(ctx context.Context, limit int) (int, error) {
	if r == nil || r.Runner == nil {
		return 0, fmt.Errorf("syndication: runtime is not configured")
	}
	processed := 0
	for limit <= 0 || processed < limit {
		ran, err := r.Runner.RunOnce(ctx)
		if err != nil {
			return processed, err
		}
		if !ran {
			break
		}
		processed++
	}
	return processed, nil
}
