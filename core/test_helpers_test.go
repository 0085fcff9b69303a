package core

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type memoryDistributionStore struct {
	mu   sync.Mutex
	rows map[string]Distribution
	fail error
}

func newMemoryDistributionStore(rows ...Distribution) *memoryDistributionStore {
	store := &memoryDistributionStore{rows: map[string]Distribution{}}
	for _, row := range rows {
		if row.VerificationStatus == "" {
			row.VerificationStatus = VerificationStatusUnverified
		}
		store.rows[row.ID] = row
	}
	return store
}

func (s *memoryDistributionStore) List(_ context.Context, query DistributionQuery) ([]Distribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	siteFilter := map[string]struct{}{}
	for _, id := range query.SiteIDs {
		siteFilter[id] = struct{}{}
	}
	statusFilter := map[DistributionStatus]struct{}{}
	for _, status := range query.Statuses {
		statusFilter[status] = struct{}{}
	}
	out := []Distribution{}
	for _, row := range s.rows {
		if row.StoryID != query.StoryID {
			continue
		}
		if _, ok := siteFilter[row.SiteID]; len(siteFilter) > 0 && !ok {
			continue
		}
		if _, ok := statusFilter[row.Status]; len(statusFilter) > 0 && !ok {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out, nil
}

func (s *memoryDistributionStore) Transition(_ context.Context, id string, next DistributionStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return false, ErrDistributionNotFound
	}
	if err := row.TransitionTo(next, at); err != nil {
		return false, nil
	}
	s.rows[id] = row
	return true, nil
}

func (s *memoryDistributionStore) ApplyVerification(_ context.Context, update VerificationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[update.DistributionID]
	if !ok {
		return ErrDistributionNotFound
	}
	if update.Status != "" {
		_ = row.TransitionTo(update.Status, update.VerifiedAt)
	}
	row.VerificationStatus = update.VerificationStatus
	verifiedAt := update.VerifiedAt
	row.LastVerifiedAt = &verifiedAt
	s.rows[update.DistributionID] = row
	return nil
}

func (s *memoryDistributionStore) get(id string) Distribution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

type memorySiteRegistry struct {
	sites map[string]Site
}

func newMemorySiteRegistry(sites ...Site) *memorySiteRegistry {
	registry := &memorySiteRegistry{sites: map[string]Site{}}
	for _, site := range sites {
		registry.sites[site.ID] = site
	}
	return registry
}

func (r *memorySiteRegistry) GetSites(_ context.Context, ids []string) (map[string]Site, error) {
	out := map[string]Site{}
	for _, id := range ids {
		if site, ok := r.sites[id]; ok {
			out[id] = site
		}
	}
	return out, nil
}

type memoryWebhookEventStore struct {
	mu         sync.Mutex
	next       int
	events     map[string]WebhookEvent
	createErr  error
	deliveries []string
}

func newMemoryWebhookEventStore() *memoryWebhookEventStore {
	return &memoryWebhookEventStore{events: map[string]WebhookEvent{}}
}

func (s *memoryWebhookEventStore) CreatePending(_ context.Context, in NewWebhookEvent) (WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return WebhookEvent{}, s.createErr
	}
	s.next++
	event := WebhookEvent{
		ID:         fmt.Sprintf("evt_%d", s.next),
		SiteID:     in.SiteID,
		StoryID:    in.StoryID,
		EventType:  in.EventType,
		TargetURL:  in.TargetURL,
		Payload:    append([]byte(nil), in.Payload...),
		Signature:  in.Signature,
		Status:     WebhookStatusPending,
		MaxRetries: in.MaxRetries,
	}
	s.events[event.ID] = event
	return event, nil
}

func (s *memoryWebhookEventStore) RecordAttempt(_ context.Context, attempt WebhookAttempt) (WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[attempt.EventID]
	if !ok {
		return WebhookEvent{}, ErrWebhookEventNotFound
	}
	at := attempt.AttemptedAt
	event.RetryCount = attempt.RetryCount
	event.HTTPStatus = attempt.Outcome.HTTPStatus
	event.ResponseBody = attempt.Outcome.ResponseBody
	event.ErrorMessage = attempt.Outcome.Error
	event.SentAt = &at
	event.NextRetryAt = attempt.NextRetryAt
	if attempt.Outcome.Success {
		event.Status = WebhookStatusDelivered
		event.DeliveredAt = &at
		event.NextRetryAt = nil
	} else {
		event.Status = WebhookStatusFailed
		event.FailedAt = &at
	}
	s.events[event.ID] = event
	return event, nil
}

func (s *memoryWebhookEventStore) ClaimRetryBatch(_ context.Context, now time.Time, limit int, lease time.Duration) ([]WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.events))
	for id, event := range s.events {
		if event.Retryable(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]WebhookEvent, 0, len(ids))
	for _, id := range ids {
		event := s.events[id]
		claimedUntil := now.Add(lease)
		stored := event
		stored.NextRetryAt = &claimedUntil
		s.events[id] = stored
		out = append(out, event)
	}
	return out, nil
}

func (s *memoryWebhookEventStore) Get(_ context.Context, id string) (WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return WebhookEvent{}, ErrWebhookEventNotFound
	}
	return event, nil
}

func (s *memoryWebhookEventStore) ListByStory(_ context.Context, storyID string) ([]WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []WebhookEvent{}
	for _, event := range s.events {
		if event.StoryID == storyID {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type testSigner struct {
	secret string
}

func (s testSigner) Sign(_ context.Context, _ string, body []byte) (string, error) {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// scriptedDeliverer answers per target URL; unknown targets succeed.
type scriptedDeliverer struct {
	mu        sync.Mutex
	responses map[string]DeliveryOutcome
	panics    map[string]bool
	requests  []DeliveryRequest
}

func newScriptedDeliverer() *scriptedDeliverer {
	return &scriptedDeliverer{responses: map[string]DeliveryOutcome{}, panics: map[string]bool{}}
}

func (d *scriptedDeliverer) Deliver(_ context.Context, req DeliveryRequest) DeliveryOutcome {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	outcome, ok := d.responses[req.TargetURL]
	shouldPanic := d.panics[req.TargetURL]
	d.mu.Unlock()
	if shouldPanic {
		panic("connection reset")
	}
	if !ok {
		return DeliveryOutcome{Success: true, HTTPStatus: 200}
	}
	return outcome
}

func (d *scriptedDeliverer) requestsFor(target string) []DeliveryRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []DeliveryRequest{}
	for _, req := range d.requests {
		if req.TargetURL == target {
			out = append(out, req)
		}
	}
	return out
}

func (d *scriptedDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type scriptedProber struct {
	mu       sync.Mutex
	statuses map[string]int
	probed   []string
}

func (p *scriptedProber) Probe(_ context.Context, url string) ProbeOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, url)
	status, ok := p.statuses[url]
	if !ok {
		return ProbeOutcome{Error: "dial tcp: connection refused"}
	}
	return ProbeOutcome{HTTPStatus: status}
}

type scheduledJob struct {
	msg   *JobExecutionMessage
	runAt time.Time
}

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
	err  error
}

func (s *recordingScheduler) Schedule(_ context.Context, msg *JobExecutionMessage, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if msg.IdempotencyKey != "" {
		for _, existing := range s.jobs {
			if existing.msg.IdempotencyKey == msg.IdempotencyKey {
				return nil
			}
		}
	}
	s.jobs = append(s.jobs, scheduledJob{msg: msg, runAt: runAt})
	return nil
}

func (s *recordingScheduler) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *recordingScheduler) snapshot() []scheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledJob(nil), s.jobs...)
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []ComplianceAlert
	err    error
}

func (a *recordingAlerts) PublishComplianceAlert(_ context.Context, alert ComplianceAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return a.err
}

func (a *recordingAlerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pipelineFixture struct {
	pipeline      *Pipeline
	distributions *memoryDistributionStore
	sites         *memorySiteRegistry
	events        *memoryWebhookEventStore
	deliverer     *scriptedDeliverer
	prober        *scriptedProber
	scheduler     *recordingScheduler
	alerts        *recordingAlerts
	clock         *manualClock
}

var errStoreDown = errors.New("store unavailable")

func newPipelineFixture(t *testing.T, sites []Site, distributions []Distribution, opts ...Option) *pipelineFixture {
	t.Helper()
	fixture := &pipelineFixture{
		distributions: newMemoryDistributionStore(distributions...),
		sites:         newMemorySiteRegistry(sites...),
		events:        newMemoryWebhookEventStore(),
		deliverer:     newScriptedDeliverer(),
		prober:        &scriptedProber{statuses: map[string]int{}},
		scheduler:     &recordingScheduler{},
		alerts:        &recordingAlerts{},
		clock:         &manualClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
	}
	base := []Option{
		WithDistributionStore(fixture.distributions),
		WithSiteRegistry(fixture.sites),
		WithWebhookEventStore(fixture.events),
		WithPayloadSigner(testSigner{secret: "shh"}),
		WithWebhookDeliverer(fixture.deliverer),
		WithRemovalProber(fixture.prober),
		WithJobScheduler(fixture.scheduler),
		WithAlertPublisher(fixture.alerts),
		WithClock(fixture.clock.Now),
	}
	pipeline, err := NewPipeline(Config{Signing: SigningConfig{Secret: "shh"}}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	fixture.pipeline = pipeline
	return fixture
}

func testSite(id string) Site {
	return Site{
		ID:         id,
		Name:       "Site " + id,
		WebhookURL: "https://" + id + ".example.com/webhooks",
		APIBaseURL: "https://" + id + ".example.com/api",
		Status:     SiteStatusActive,
	}
}

func activeDistribution(storyID, siteID string) Distribution {
	return Distribution{
		ID:      "dist_" + storyID + "_" + siteID,
		StoryID: storyID,
		SiteID:  siteID,
		Status:  DistributionStatusActive,
	}
}
