package jobs

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-syndication/core"
)

// ObservingHook logs each job transition and records
// syndication.job.<phase>.total counters plus a duration histogram.
type ObservingHook struct {
	logger  core.Logger
	metrics core.MetricsRecorder
}

func NewObservingHook(logger core.Logger, metrics core.MetricsRecorder) *ObservingHook {
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &ObservingHook{logger: glog.Ensure(logger), metrics: metrics}
}

func (h *ObservingHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.Debug("job started", jobFields(event)...)
	h.metrics.IncCounter(ctx, "syndication.job.started.total", 1, jobTags(event, "started"))
}

func (h *ObservingHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.Info("job succeeded", jobFields(event)...)
	h.record(ctx, event, "success")
}

func (h *ObservingHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.Warn("job failed, retry scheduled", jobFields(event)...)
	h.record(ctx, event, "retry")
}

func (h *ObservingHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.Error("job dead-lettered", jobFields(event)...)
	h.record(ctx, event, "failure")
}

func (h *ObservingHook) record(ctx context.Context, event core.JobWorkerEvent, status string) {
	tags := jobTags(event, status)
	h.metrics.IncCounter(ctx, "syndication.job.total", 1, tags)
	h.metrics.ObserveHistogram(ctx, "syndication.job.duration_ms", float64(event.Duration.Milliseconds()), tags)
}

func jobTags(event core.JobWorkerEvent, status string) map[string]string {
	return map[string]string{
		"operation": jobIDOf(event.Message),
		"status":    status,
	}
}

func jobFields(event core.JobWorkerEvent) []any {
	fields := []any{
		"job_id", jobIDOf(event.Message),
		"attempt", event.Attempt,
	}
	if event.Message != nil && event.Message.IdempotencyKey != "" {
		fields = append(fields, "idempotency_key", event.Message.IdempotencyKey)
	}
	if event.Duration > 0 {
		fields = append(fields, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Delay > 0 {
		fields = append(fields, "retry_in", event.Delay.String())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

var _ core.JobWorkerHook = (*ObservingHook)(nil)
