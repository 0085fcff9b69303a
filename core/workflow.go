package core

import (
	"context"
	"time"
)

// Workflow groups the named steps of one job run. Each step is logged and
// measured on its own; a failed step aborts the run and the job queue re-runs
// it from the top, which the store guards make safe.
type Workflow struct {
	pipeline *Pipeline
	name     string
	fields   map[string]any
}

func (p *Pipeline) newWorkflow(name string, fields map[string]any) *Workflow {
	return &Workflow{pipeline: p, name: normalizeOperation(name), fields: cloneFields(fields)}
}

func (w *Workflow) Step(ctx context.Context, step string, fn func(context.Context) error) error {
	_, err := RunStep(ctx, w, step, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func RunStep[T any](ctx context.Context, w *Workflow, step string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if fn == nil {
		return zero, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if w == nil || w.pipeline == nil {
		return fn(ctx)
	}
	startedAt := time.Now()
	out, err := fn(ctx)
	fields := cloneFields(w.fields)
	fields["workflow"] = w.name
	fields["step"] = step
	w.pipeline.observeOperation(ctx, startedAt, w.name+".step", err, fields)
	return out, err
}
