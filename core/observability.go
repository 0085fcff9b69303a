package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

// observeOperation emits one structured log line plus a counter and a
// duration histogram for a completed unit of work.
func (p *Pipeline) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if p == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	elapsed := time.Since(startedAt)

	contextFields := cloneFields(fields)
	contextFields["operation"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"event_type", "step"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	p.recordCounter(ctx, "syndication."+operation+".total", 1, tags)
	p.recordHistogram(ctx, "syndication."+operation+".duration_ms", float64(elapsed.Milliseconds()), tags)

	if err != nil {
		p.logError(ctx, operation+" failed", contextFields)
		return
	}
	p.logInfo(ctx, operation+" succeeded", contextFields)
}

func (p *Pipeline) logInfo(ctx context.Context, message string, fields map[string]any) {
	p.logWithLevel(ctx, "info", message, fields)
}

func (p *Pipeline) logWarn(ctx context.Context, message string, fields map[string]any) {
	p.logWithLevel(ctx, "warn", message, fields)
}

func (p *Pipeline) logError(ctx context.Context, message string, fields map[string]any) {
	p.logWithLevel(ctx, "error", message, fields)
}

func (p *Pipeline) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if p == nil || p.logger == nil {
		return
	}
	logger := p.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (p *Pipeline) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if p == nil || p.metrics == nil {
		return
	}
	p.metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (p *Pipeline) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if p == nil || p.metrics == nil {
		return
	}
	p.metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
