package jobs

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-syndication/core"
	"github.com/robfig/cron/v3"
)

const (
	DefaultRetrySweepSpec   = "*/5 * * * *"
	DefaultRetrySweepWindow = 5 * time.Minute
)

type CronConfig struct {
	// Spec is a standard five-field cron expression evaluated in UTC.
	Spec string
	// Window buckets tick times into idempotency keys, so several schedulers
	// firing in the same window enqueue one sweep.
	Window    time.Duration
	BatchSize int
}

func (c CronConfig) withDefaults() CronConfig {
	c.Spec = strings.TrimSpace(c.Spec)
	if c.Spec == "" {
		c.Spec = DefaultRetrySweepSpec
	}
	if c.Window <= 0 {
		c.Window = DefaultRetrySweepWindow
	}
	if c.BatchSize < 0 {
		c.BatchSize = 0
	}
	return c
}

// Cron enqueues the webhook retry sweep on a schedule.
type Cron struct {
	enqueuer core.JobEnqueuer
	config   CronConfig
	logger   core.Logger
	cron     *cron.Cron
	now      func() time.Time
}

func NewCron(enqueuer core.JobEnqueuer, cfg CronConfig, logger core.Logger) (*Cron, error) {
	if enqueuer == nil {
		return nil, jobsInternal("jobs: cron enqueuer is required")
	}
	cfg = cfg.withDefaults()
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, jobsWrapBadInput(err, "jobs: invalid retry sweep schedule", map[string]any{"spec": cfg.Spec})
	}
	c := &Cron{
		enqueuer: enqueuer,
		config:   cfg,
		logger:   glog.Ensure(logger),
		cron:     cron.New(cron.WithLocation(time.UTC)),
		now:      time.Now,
	}
	if _, err := c.cron.AddFunc(cfg.Spec, c.tick); err != nil {
		return nil, jobsWrapBadInput(err, "jobs: register retry sweep", map[string]any{"spec": cfg.Spec})
	}
	return c, nil
}

func (c *Cron) Start() {
	c.logger.Info("retry sweep scheduled", "spec", c.config.Spec)
	c.cron.Start()
}

// Stop halts the schedule; the returned context is done once a running tick
// has finished.
func (c *Cron) Stop() context.Context {
	return c.cron.Stop()
}

// EnqueueRetrySweep enqueues the sweep for the window containing at.
func (c *Cron) EnqueueRetrySweep(ctx context.Context, at time.Time) error {
	window := at.UTC().Truncate(c.config.Window)
	return c.enqueuer.Enqueue(ctx, core.NewRetryJobMessage(window, c.config.BatchSize))
}

func (c *Cron) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.EnqueueRetrySweep(ctx, c.now()); err != nil {
		c.logger.Error("enqueue retry sweep failed", "error", err.Error())
	}
}
