package inbound

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-syndication/core"
	"github.com/goliatone/go-syndication/webhooks"
)

type recordingTriggers struct {
	revoke   []core.RevokeRequest
	verify   []core.VerifyRequest
	notify   []core.NotifyRequest
	retry    []core.RetryRequest
	retryAt  time.Time
	eventIDs []string
	err      error
}

func (r *recordingTriggers) ContentRevoked(_ context.Context, req core.RevokeRequest, eventID string) (*core.JobExecutionMessage, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.revoke = append(r.revoke, req)
	r.eventIDs = append(r.eventIDs, eventID)
	return core.NewRevokeJobMessage(req, "revoke:"+eventID), nil
}

func (r *recordingTriggers) VerifyRemoval(_ context.Context, req core.VerifyRequest) (*core.JobExecutionMessage, error) {
	r.verify = append(r.verify, req)
	return core.NewVerifyJobMessage(req), nil
}

func (r *recordingTriggers) Notify(_ context.Context, req core.NotifyRequest, eventID string) (*core.JobExecutionMessage, error) {
	r.notify = append(r.notify, req)
	r.eventIDs = append(r.eventIDs, eventID)
	return core.NewNotifyJobMessage(req, "notify:"+eventID), nil
}

func (r *recordingTriggers) RetrySweep(_ context.Context, req core.RetryRequest, at time.Time) (*core.JobExecutionMessage, error) {
	r.retry = append(r.retry, req)
	r.retryAt = at
	return core.NewRetryJobMessage(at, req.BatchSize), nil
}

func signed(t *testing.T, body string, secret string) string {
	t.Helper()
	signature, err := webhooks.Sign([]byte(body), secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signature
}

func TestSyndicationDispatcher_RoutesEveryEvent(t *testing.T) {
	triggers := &recordingTriggers{}
	dispatcher, err := NewSyndicationDispatcher(triggers, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	events := dispatcher.Events()
	sort.Strings(events)
	expected := []string{EventContentRevoked, EventNotify, EventVerifyRemoval, EventRetryWebhooks}
	sort.Strings(expected)
	if len(events) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, events)
	}
	for i := range expected {
		if events[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, events)
		}
	}

	ctx := context.Background()
	result, err := dispatcher.Dispatch(ctx, Event{
		Name: " Content.Revoked ",
		ID:   "evt-1",
		Body: []byte(`{"storyId":"story-1","siteIds":["site-a"],"reason":"legal"}`),
	})
	if err != nil {
		t.Fatalf("dispatch revoke: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusAccepted {
		t.Fatalf("expected accepted result, got %#v", result)
	}
	if result.JobID != core.JobIDRevokeContent || result.IdempotencyKey != "revoke:evt-1" {
		t.Fatalf("unexpected job reference: %#v", result)
	}
	if len(triggers.revoke) != 1 || triggers.revoke[0].Reason != "legal" || triggers.revoke[0].SiteIDs[0] != "site-a" {
		t.Fatalf("unexpected revoke request: %#v", triggers.revoke)
	}

	if _, err := dispatcher.Dispatch(ctx, Event{
		Name: EventVerifyRemoval,
		Body: []byte(`{"storyId":"story-1","siteIds":["site-a"],"revocationTimestamp":"2026-03-14T12:00:00.000Z"}`),
	}); err != nil {
		t.Fatalf("dispatch verify: %v", err)
	}
	if len(triggers.verify) != 1 || !triggers.verify[0].RevocationTimestamp.Equal(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected verify request: %#v", triggers.verify)
	}

	if _, err := dispatcher.Dispatch(ctx, Event{
		Name: EventNotify,
		ID:   "evt-2",
		Body: []byte(`{"event":"content_updated","storyId":"story-1","data":{"title":"new"}}`),
	}); err != nil {
		t.Fatalf("dispatch notify: %v", err)
	}
	if len(triggers.notify) != 1 || triggers.notify[0].Event != core.EventContentUpdated || triggers.notify[0].Data["title"] != "new" {
		t.Fatalf("unexpected notify request: %#v", triggers.notify)
	}

	receivedAt := time.Date(2026, 3, 14, 12, 3, 0, 0, time.UTC)
	if _, err := dispatcher.Dispatch(ctx, Event{Name: EventRetryWebhooks, ReceivedAt: receivedAt}); err != nil {
		t.Fatalf("dispatch retry without body: %v", err)
	}
	if len(triggers.retry) != 1 || !triggers.retryAt.Equal(receivedAt) {
		t.Fatalf("expected retry sweep at receive time, got %#v at %s", triggers.retry, triggers.retryAt)
	}
}

func TestDispatcher_UnknownEventIsNotFound(t *testing.T) {
	dispatcher, err := NewSyndicationDispatcher(&recordingTriggers{}, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	_, err = dispatcher.Dispatch(context.Background(), Event{Name: "story.deleted", Body: []byte(`{}`)})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %v", err)
	}
	if rich.Category != goerrors.CategoryNotFound || rich.Code != http.StatusNotFound {
		t.Fatalf("expected not found error, got %q %d", rich.Category, rich.Code)
	}
}

func TestDispatcher_SignatureVerification(t *testing.T) {
	triggers := &recordingTriggers{}
	dispatcher, err := NewSyndicationDispatcher(triggers, SignatureVerifier{Secret: "inbound-secret"})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	body := `{"storyId":"story-1"}`
	ctx := context.Background()

	cases := map[string]string{
		"missing":    "",
		"wrong key":  signed(t, body, "other-secret"),
		"wrong body": signed(t, `{"storyId":"story-2"}`, "inbound-secret"),
	}
	for name, signature := range cases {
		result, err := dispatcher.Dispatch(ctx, Event{Name: EventContentRevoked, Body: []byte(body), Signature: signature})
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryAuth {
			t.Fatalf("%s: expected auth error, got %v", name, err)
		}
		if rich.TextCode != core.SyndicationErrorUnauthorized || result.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 unauthorized, got %q %d", name, rich.TextCode, result.StatusCode)
		}
	}
	if len(triggers.revoke) != 0 {
		t.Fatalf("expected rejected events not to enqueue jobs")
	}

	if _, err := dispatcher.Dispatch(ctx, Event{
		Name:      EventContentRevoked,
		Body:      []byte(body),
		Signature: signed(t, body, "inbound-secret"),
	}); err != nil {
		t.Fatalf("expected valid signature to pass: %v", err)
	}
	if len(triggers.revoke) != 1 {
		t.Fatalf("expected one revoke trigger, got %d", len(triggers.revoke))
	}
}

func TestDispatcher_BadBodiesAreBadInput(t *testing.T) {
	dispatcher, err := NewSyndicationDispatcher(&recordingTriggers{}, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	cases := map[string]Event{
		"empty body":    {Name: EventContentRevoked},
		"invalid json":  {Name: EventNotify, Body: []byte(`{`)},
		"bad timestamp": {Name: EventVerifyRemoval, Body: []byte(`{"storyId":"s","siteIds":["a"],"revocationTimestamp":"yesterday"}`)},
		"invalid retry": {Name: EventRetryWebhooks, Body: []byte(`[]`)},
	}
	for name, event := range cases {
		_, err := dispatcher.Dispatch(context.Background(), event)
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryBadInput {
			t.Fatalf("%s: expected bad input error, got %v", name, err)
		}
	}
}

func TestDispatcher_TriggerErrorsPassThrough(t *testing.T) {
	boom := errors.New("queue down")
	dispatcher, err := NewSyndicationDispatcher(&recordingTriggers{err: boom}, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	_, err = dispatcher.Dispatch(context.Background(), Event{Name: EventContentRevoked, Body: []byte(`{"storyId":"s"}`)})
	if !errors.Is(err, boom) {
		t.Fatalf("expected trigger error, got %v", err)
	}
}

func TestDispatcher_RegisterRejectsDuplicates(t *testing.T) {
	dispatcher := NewDispatcher(nil)
	handler := func(context.Context, Event) (Result, error) { return Result{Accepted: true}, nil }
	if err := dispatcher.Register("custom", handler); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := dispatcher.Register(" CUSTOM ", handler)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if err := dispatcher.Register("", handler); err == nil {
		t.Fatalf("expected empty event name to be rejected")
	}
}
