package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-syndication/command"
	"github.com/goliatone/go-syndication/core"
)

// HandlerFunc executes one job message.
type HandlerFunc func(ctx context.Context, msg *core.JobExecutionMessage) error

// Handlers routes job messages by job id.
type Handlers struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewHandlers() *Handlers {
	return &Handlers{handlers: map[string]HandlerFunc{}}
}

// NewSyndicationHandlers registers the four pipeline jobs. Parameters are
// decoded with the core parsers and run through the command layer, so a job
// and a direct dispatch validate the same way.
func NewSyndicationHandlers(service command.SyndicationService) (*Handlers, error) {
	if service == nil {
		return nil, jobsInternal("jobs: syndication service is required")
	}
	h := NewHandlers()
	revoke := command.NewRevokeContentCommand(service)
	verify := command.NewVerifyRemovalCommand(service)
	retry := command.NewRetryFailedWebhooksCommand(service)
	notify := command.NewNotifySitesCommand(service)

	registrations := map[string]HandlerFunc{
		core.JobIDRevokeContent: func(ctx context.Context, msg *core.JobExecutionMessage) error {
			req, err := core.RevokeRequestFromParams(msg.Parameters)
			if err != nil {
				return Permanent(jobsWrapBadInput(err, "jobs: invalid revoke parameters", jobMetadata(msg)))
			}
			return execute(ctx, revoke.Execute, command.RevokeContentMessage{Request: req})
		},
		core.JobIDVerifyRemoval: func(ctx context.Context, msg *core.JobExecutionMessage) error {
			req, err := core.VerifyRequestFromParams(msg.Parameters)
			if err != nil {
				return Permanent(jobsWrapBadInput(err, "jobs: invalid verification parameters", jobMetadata(msg)))
			}
			return execute(ctx, verify.Execute, command.VerifyRemovalMessage{Request: req})
		},
		core.JobIDRetryWebhooks: func(ctx context.Context, msg *core.JobExecutionMessage) error {
			req := core.RetryRequestFromParams(msg.Parameters)
			return execute(ctx, retry.Execute, command.RetryFailedWebhooksMessage{Request: req})
		},
		core.JobIDNotifySites: func(ctx context.Context, msg *core.JobExecutionMessage) error {
			req, err := core.NotifyRequestFromParams(msg.Parameters)
			if err != nil {
				return Permanent(jobsWrapBadInput(err, "jobs: invalid notify parameters", jobMetadata(msg)))
			}
			return execute(ctx, notify.Execute, command.NotifySitesMessage{Request: req})
		},
	}
	for jobID, fn := range registrations {
		if err := h.Register(jobID, fn); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Handlers) Register(jobID string, fn HandlerFunc) error {
	if h == nil {
		return jobsInternal("jobs: handlers are nil")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return jobsBadInput("jobs: job id is required", nil)
	}
	if fn == nil {
		return jobsBadInput("jobs: handler is required", map[string]any{"job_id": jobID})
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlers[jobID]; exists {
		return jobsBadInput(fmt.Sprintf("jobs: handler already registered for %q", jobID), map[string]any{"job_id": jobID})
	}
	h.handlers[jobID] = fn
	return nil
}

// Handle runs the handler registered for msg.JobID. An unknown job id or a
// message without one is a permanent failure.
func (h *Handlers) Handle(ctx context.Context, msg *core.JobExecutionMessage) error {
	if h == nil {
		return jobsInternal("jobs: handlers are nil")
	}
	if msg == nil {
		return Permanent(jobsBadInput("jobs: execution message is required", nil))
	}
	jobID := strings.TrimSpace(msg.JobID)
	h.mu.RLock()
	fn, ok := h.handlers[jobID]
	h.mu.RUnlock()
	if !ok {
		return Permanent(jobsBadInput(fmt.Sprintf("jobs: no handler registered for %q", jobID), map[string]any{"job_id": jobID}))
	}
	return fn(ctx, msg)
}

type validatable interface {
	Validate() error
}

func execute[T validatable](ctx context.Context, run func(context.Context, T) error, msg T) error {
	if err := msg.Validate(); err != nil {
		return Permanent(err)
	}
	return run(ctx, msg)
}

func jobMetadata(msg *core.JobExecutionMessage) map[string]any {
	if msg == nil {
		return nil
	}
	out := map[string]any{"job_id": msg.JobID}
	if msg.IdempotencyKey != "" {
		out["idempotency_key"] = msg.IdempotencyKey
	}
	return out
}
