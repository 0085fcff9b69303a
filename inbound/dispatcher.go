package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-syndication/core"
	"github.com/goliatone/go-syndication/webhooks"
)

const (
	EventContentRevoked = "content.revoked"
	EventVerifyRemoval  = "verify-removal"
	EventNotify         = "notify"
	EventRetryWebhooks  = "webhooks.retry"
)

// Event is one inbound request. ID, when present, is the sender's event id
// and becomes the job idempotency key.
type Event struct {
	Name       string
	ID         string
	Body       []byte
	Signature  string
	ReceivedAt time.Time
}

type Result struct {
	Accepted       bool
	StatusCode     int
	JobID          string
	IdempotencyKey string
}

type Verifier interface {
	Verify(ctx context.Context, event Event) error
}

// SignatureVerifier checks the HMAC-SHA256 of the raw body against a shared
// secret, using the same scheme as outbound deliveries.
type SignatureVerifier struct {
	Secret string
}

func (v SignatureVerifier) Verify(_ context.Context, event Event) error {
	if strings.TrimSpace(event.Signature) == "" {
		return fmt.Errorf("inbound: signature is missing")
	}
	if !webhooks.Verify(event.Body, event.Signature, v.Secret) {
		return fmt.Errorf("inbound: signature mismatch")
	}
	return nil
}

type Handler func(ctx context.Context, event Event) (Result, error)

// JobTriggers is the enqueue surface the default handlers drive.
type JobTriggers interface {
	ContentRevoked(ctx context.Context, req core.RevokeRequest, eventID string) (*core.JobExecutionMessage, error)
	VerifyRemoval(ctx context.Context, req core.VerifyRequest) (*core.JobExecutionMessage, error)
	Notify(ctx context.Context, req core.NotifyRequest, eventID string) (*core.JobExecutionMessage, error)
	RetrySweep(ctx context.Context, req core.RetryRequest, at time.Time) (*core.JobExecutionMessage, error)
}

type Dispatcher struct {
	Verifier Verifier

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher(verifier Verifier) *Dispatcher {
	return &Dispatcher{
		Verifier: verifier,
		handlers: map[string]Handler{},
	}
}

// NewSyndicationDispatcher registers the default event handlers on top of
// triggers.
func NewSyndicationDispatcher(triggers JobTriggers, verifier Verifier) (*Dispatcher, error) {
	if triggers == nil {
		return nil, inboundInternal("inbound: job triggers are required", nil)
	}
	d := NewDispatcher(verifier)
	handlers := map[string]Handler{
		EventContentRevoked: func(ctx context.Context, event Event) (Result, error) {
			var body struct {
				StoryID string   `json:"storyId"`
				SiteIDs []string `json:"siteIds"`
				Reason  string   `json:"reason"`
			}
			if err := decodeBody(event, &body); err != nil {
				return Result{}, err
			}
			msg, err := triggers.ContentRevoked(ctx, core.RevokeRequest{
				StoryID: body.StoryID,
				SiteIDs: body.SiteIDs,
				Reason:  body.Reason,
			}, event.ID)
			return acceptedResult(msg, err)
		},
		EventVerifyRemoval: func(ctx context.Context, event Event) (Result, error) {
			var body struct {
				StoryID             string   `json:"storyId"`
				SiteIDs             []string `json:"siteIds"`
				RevocationTimestamp string   `json:"revocationTimestamp"`
			}
			if err := decodeBody(event, &body); err != nil {
				return Result{}, err
			}
			at, err := core.ParseTimestamp(body.RevocationTimestamp)
			if err != nil {
				return Result{}, inboundWrapError(err, goerrors.CategoryBadInput, "inbound: invalid revocation timestamp",
					http.StatusBadRequest, core.SyndicationErrorBadInput, map[string]any{"event": event.Name})
			}
			msg, err := triggers.VerifyRemoval(ctx, core.VerifyRequest{
				StoryID:             body.StoryID,
				SiteIDs:             body.SiteIDs,
				RevocationTimestamp: at,
			})
			return acceptedResult(msg, err)
		},
		EventNotify: func(ctx context.Context, event Event) (Result, error) {
			var body struct {
				Event   string         `json:"event"`
				StoryID string         `json:"storyId"`
				SiteIDs []string       `json:"siteIds"`
				Data    map[string]any `json:"data"`
			}
			if err := decodeBody(event, &body); err != nil {
				return Result{}, err
			}
			msg, err := triggers.Notify(ctx, core.NotifyRequest{
				Event:   core.EventType(strings.TrimSpace(body.Event)),
				StoryID: body.StoryID,
				SiteIDs: body.SiteIDs,
				Data:    body.Data,
			}, event.ID)
			return acceptedResult(msg, err)
		},
		EventRetryWebhooks: func(ctx context.Context, event Event) (Result, error) {
			var body struct {
				BatchSize int `json:"batchSize"`
			}
			if len(event.Body) > 0 {
				if err := decodeBody(event, &body); err != nil {
					return Result{}, err
				}
			}
			msg, err := triggers.RetrySweep(ctx, core.RetryRequest{BatchSize: body.BatchSize}, event.ReceivedAt)
			return acceptedResult(msg, err)
		},
	}
	for name, handler := range handlers {
		if err := d.Register(name, handler); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dispatcher) Register(name string, handler Handler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	name = normalizeEventName(name)
	if name == "" {
		return inboundBadInput("inbound: event name is required", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[name]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for event %q", name),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.SyndicationErrorConflict,
			map[string]any{"event": name},
		)
	}
	d.handlers[name] = handler
	return nil
}

func (d *Dispatcher) Events() []string {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	return out
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (Result, error) {
	if d == nil {
		return Result{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	event.Name = normalizeEventName(event.Name)
	event.ID = strings.TrimSpace(event.ID)
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	handler := d.handlerFor(event.Name)
	if handler == nil {
		return Result{}, inboundError(
			fmt.Sprintf("inbound: no handler registered for event %q", event.Name),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.SyndicationErrorNotFound,
			map[string]any{"event": event.Name},
		)
	}
	if d.Verifier != nil {
		if err := d.Verifier.Verify(ctx, event); err != nil {
			return Result{Accepted: false, StatusCode: http.StatusUnauthorized}, inboundWrapError(
				err,
				goerrors.CategoryAuth,
				"inbound: request verification failed",
				http.StatusUnauthorized,
				core.SyndicationErrorUnauthorized,
				map[string]any{"event": event.Name},
			)
		}
	}
	return handler(ctx, event)
}

func (d *Dispatcher) handlerFor(name string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[name]
}

func decodeBody(event Event, target any) error {
	if len(event.Body) == 0 {
		return inboundBadInput("inbound: request body is required", map[string]any{"event": event.Name})
	}
	if err := json.Unmarshal(event.Body, target); err != nil {
		return inboundWrapError(err, goerrors.CategoryBadInput, "inbound: invalid json body",
			http.StatusBadRequest, core.SyndicationErrorBadInput, map[string]any{"event": event.Name})
	}
	return nil
}

func acceptedResult(msg *core.JobExecutionMessage, err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	out := Result{Accepted: true, StatusCode: http.StatusAccepted}
	if msg != nil {
		out.JobID = msg.JobID
		out.IdempotencyKey = msg.IdempotencyKey
	}
	return out, nil
}

func normalizeEventName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
