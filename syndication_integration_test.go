package syndication_test

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	syndication "github.com/goliatone/go-syndication"
	"github.com/goliatone/go-syndication/adapters/gocommand"
	"github.com/goliatone/go-syndication/command"
	"github.com/goliatone/go-syndication/core"
	"github.com/goliatone/go-syndication/httpapi"
	"github.com/goliatone/go-syndication/inbound"
	syndicationmigrations "github.com/goliatone/go-syndication/migrations"
	"github.com/goliatone/go-syndication/query"
	"github.com/goliatone/go-syndication/webhooks"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	outboundSecret = "outbound-test-secret"
	inboundSecret  = "inbound-test-secret"
)

type testPersistenceConfig struct {
	dsn string
}

func (testPersistenceConfig) GetDebug() bool                { return false }
func (testPersistenceConfig) GetDriver() string             { return "sqlite3" }
func (c testPersistenceConfig) GetServer() string           { return c.dsn }
func (testPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (testPersistenceConfig) GetOtelIdentifier() string     { return "go-syndication-tests" }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// partnerSite accepts webhooks and answers removal probes with probeStatus.
type partnerSite struct {
	t           *testing.T
	server      *httptest.Server
	probeStatus int

	mu         sync.Mutex
	deliveries int
	badSigs    int
}

func newPartnerSite(t *testing.T, probeStatus int) *partnerSite {
	t.Helper()
	site := &partnerSite{t: t, probeStatus: probeStatus}
	site.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/hooks":
			body, _ := io.ReadAll(r.Body)
			site.mu.Lock()
			site.deliveries++
			if !webhooks.Verify(body, r.Header.Get(core.DefaultSignatureHeader), outboundSecret) {
				site.badSigs++
			}
			site.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead && r.URL.Path == "/api/stories/story-1":
			w.WriteHeader(site.probeStatus)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(site.server.Close)
	return site
}

func (p *partnerSite) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deliveries, p.badSigs
}

func TestRuntime_RevocationLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	removed := newPartnerSite(t, http.StatusNotFound)
	lingering := newPartnerSite(t, http.StatusOK)

	rt := newTestRuntime(t, clock)
	for id, partner := range map[string]*partnerSite{"site-a": removed, "site-b": lingering} {
		if _, err := rt.Facade.UpsertSite(ctx, core.Site{
			ID:         id,
			WebhookURL: partner.server.URL + "/hooks",
			APIBaseURL: partner.server.URL + "/api",
		}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
		if _, err := rt.Facade.RecordDistribution(ctx, "story-1", id); err != nil {
			t.Fatalf("record distribution %s: %v", id, err)
		}
	}

	handler, err := httpapi.New(httpapi.Config{
		Dispatcher: rt.Dispatcher,
		Reader:     rt.Facade,
		Gatherer:   prometheus.NewRegistry(),
		Metrics:    rt.Metrics,
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("new http handler: %v", err)
	}
	body := []byte(`{"storyId":"story-1","reason":"legal"}`)
	postEvent := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/events/content.revoked", bytes.NewReader(body))
		req.Header.Set(core.DefaultSignatureHeader, signature)
		req.Header.Set(core.DefaultDeliveryHeader, "evt-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := postEvent("sha256=deadbeef"); code != http.StatusUnauthorized {
		t.Fatalf("expected forged event to be rejected, got %d", code)
	}
	signature, err := webhooks.Sign(body, inboundSecret)
	if err != nil {
		t.Fatalf("sign inbound event: %v", err)
	}
	if code := postEvent(signature); code != http.StatusAccepted {
		t.Fatalf("expected signed event to be accepted, got %d", code)
	}
	if code := postEvent(signature); code != http.StatusAccepted {
		t.Fatalf("expected redelivered event to be accepted, got %d", code)
	}

	// Revocation: both partners notified, verification scheduled a minute out.
	if processed := drain(t, rt); processed != 1 {
		t.Fatalf("expected redelivered event to collapse into one job, ran %d", processed)
	}
	for name, partner := range map[string]*partnerSite{"site-a": removed, "site-b": lingering} {
		deliveries, badSigs := partner.counts()
		if deliveries != 1 || badSigs != 0 {
			t.Fatalf("%s: expected one correctly signed delivery, got %d (%d bad)", name, deliveries, badSigs)
		}
	}
	assertStatuses(t, rt, map[string]core.DistributionStatus{
		"site-a": core.DistributionStatusPendingRemoval,
		"site-b": core.DistributionStatusPendingRemoval,
	})
	if processed := drain(t, rt); processed != 0 {
		t.Fatalf("expected verification to wait for its delay, ran %d", processed)
	}

	// First verification: site-a removed, site-b still serving; recheck at deadline.
	clock.Advance(time.Minute)
	if processed := drain(t, rt); processed != 1 {
		t.Fatalf("expected verification job, ran %d", processed)
	}
	assertStatuses(t, rt, map[string]core.DistributionStatus{
		"site-a": core.DistributionStatusRemoved,
		"site-b": core.DistributionStatusFailed,
	})
	alerts, err := rt.Facade.ListComplianceAlerts(ctx, "story-1")
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alert inside the deadline, got %d", len(alerts))
	}

	// Deadline recheck: site-b still serving, alert raised and stored.
	clock.Advance(4 * time.Minute)
	if processed := drain(t, rt); processed != 1 {
		t.Fatalf("expected deadline recheck job, ran %d", processed)
	}
	alerts, err = rt.Facade.ListComplianceAlerts(ctx, "story-1")
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 || len(alerts[0].FailedSites) != 1 || alerts[0].FailedSites[0].SiteID != "site-b" {
		t.Fatalf("expected one alert naming site-b, got %#v", alerts)
	}

	events, err := rt.Facade.ListWebhookEvents(ctx, "story-1")
	if err != nil {
		t.Fatalf("list webhook events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two webhook events, got %d", len(events))
	}
	for _, event := range events {
		if event.Status != core.WebhookStatusDelivered || event.EventType != core.EventContentRevoked {
			t.Fatalf("unexpected webhook event: %#v", event)
		}
		if !webhooks.Verify(event.Payload, event.Signature, outboundSecret) {
			t.Fatalf("stored signature does not match stored payload for %s", event.ID)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/stories/story-1/compliance-alerts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"site-b"`)) {
		t.Fatalf("expected audit endpoint to expose the alert, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestFacade_ValidatesBeforeExecuting(t *testing.T) {
	rt := newTestRuntime(t, &testClock{now: time.Now().UTC()})
	if _, err := rt.Facade.RevokeContent(context.Background(), core.RevokeRequest{}); err == nil {
		t.Fatalf("expected missing story id to be rejected")
	}
	_, err := rt.Facade.ListDistributions(context.Background(), query.ListDistributionsMessage{
		StoryID:  "story-1",
		Statuses: []core.DistributionStatus{"archived"},
	})
	if err == nil {
		t.Fatalf("expected unknown status filter to be rejected")
	}
	result, err := rt.Facade.RevokeContent(context.Background(), core.RevokeRequest{StoryID: "story-unknown"})
	if err != nil {
		t.Fatalf("revoke without distributions: %v", err)
	}
	if result.Message != core.NoActiveDistributionsMessage {
		t.Fatalf("expected no-distributions message, got %q", result.Message)
	}
}

func TestRuntime_VerifyTriggerWaitsForVerificationDelay(t *testing.T) {
	ctx := context.Background()
	revokedAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := &testClock{now: revokedAt.Add(20 * time.Second)}
	rt := newTestRuntime(t, clock)

	body := []byte(fmt.Sprintf(`{"storyId":"story-1","siteIds":["site-a"],"revocationTimestamp":%q}`, core.FormatTimestamp(revokedAt)))
	signature, err := webhooks.Sign(body, inboundSecret)
	if err != nil {
		t.Fatalf("sign inbound event: %v", err)
	}
	if _, err := rt.Dispatcher.Dispatch(ctx, inbound.Event{Name: inbound.EventVerifyRemoval, Body: body, Signature: signature}); err != nil {
		t.Fatalf("dispatch verify event: %v", err)
	}

	pending, err := rt.Stores.JobQueueStore().Pending(ctx, 10)
	if err != nil {
		t.Fatalf("pending jobs: %v", err)
	}
	if len(pending) != 1 || pending[0].JobID != core.JobIDVerifyRemoval {
		t.Fatalf("expected one verify job, got %#v", pending)
	}
	if want := revokedAt.Add(time.Minute); !pending[0].AvailableAt.Equal(want) {
		t.Fatalf("expected available_at %s, got %s", want, pending[0].AvailableAt)
	}
	if processed := drain(t, rt); processed != 0 {
		t.Fatalf("expected verify job to wait for the verification delay, ran %d", processed)
	}
	clock.Advance(40 * time.Second)
	if processed := drain(t, rt); processed < 1 {
		t.Fatalf("expected verify job once the delay elapsed")
	}
}

func TestFacade_RegisterExposesHandlersOnDispatcher(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, &testClock{now: time.Now().UTC()})
	adapter := gocommand.NewRegistryAdapter(nil)
	subscriptions, err := rt.Facade.Register(adapter)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer subscriptions.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if err := gocommand.Dispatch(ctx, command.UpsertSiteMessage{Site: core.Site{
		ID:         "site-dispatched",
		WebhookURL: "https://partner.example.com/hooks",
	}}); err != nil {
		t.Fatalf("dispatch upsert: %v", err)
	}
	sites, err := gocommand.Query[query.ListSitesMessage, []core.Site](ctx, query.ListSitesMessage{})
	if err != nil {
		t.Fatalf("query sites: %v", err)
	}
	if len(sites) != 1 || sites[0].ID != "site-dispatched" {
		t.Fatalf("expected dispatched site to be listed, got %#v", sites)
	}
}

func TestNewRuntime_RequiresInboundSecretOutsideDevelopment(t *testing.T) {
	client := newSQLiteClient(t)
	cfg := syndication.DefaultConfig()
	cfg.Environment = "production"
	cfg.Signing.Secret = outboundSecret
	_, err := syndication.NewRuntime(client.DB(), syndication.RuntimeConfig{
		Pipeline:   cfg,
		Registerer: prometheus.NewRegistry(),
	})
	if err == nil {
		t.Fatalf("expected missing inbound secret to be rejected in production")
	}
}

func newTestRuntime(t *testing.T, clock *testClock) *syndication.Runtime {
	t.Helper()
	client := newSQLiteClient(t)
	cfg := syndication.DefaultConfig()
	cfg.Environment = "test"
	cfg.Signing.Secret = outboundSecret
	cfg.Verification.Delay = time.Minute
	cfg.Verification.Deadline = 5 * time.Minute
	rt, err := syndication.NewRuntime(client.DB(), syndication.RuntimeConfig{
		Pipeline:      cfg,
		InboundSecret: inboundSecret,
		Registerer:    prometheus.NewRegistry(),
		SiteCacheTTL:  time.Minute,
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	return rt
}

func drain(t *testing.T, rt *syndication.Runtime) int {
	t.Helper()
	processed, err := rt.Drain(context.Background(), 20)
	if err != nil {
		t.Fatalf("drain jobs: %v", err)
	}
	return processed
}

func assertStatuses(t *testing.T, rt *syndication.Runtime, expected map[string]core.DistributionStatus) {
	t.Helper()
	rows, err := rt.Facade.ListDistributions(context.Background(), query.ListDistributionsMessage{StoryID: "story-1"})
	if err != nil {
		t.Fatalf("list distributions: %v", err)
	}
	if len(rows) != len(expected) {
		t.Fatalf("expected %d distributions, got %d", len(expected), len(rows))
	}
	for _, row := range rows {
		if row.Status != expected[row.SiteID] {
			t.Fatalf("%s: expected %s, got %s", row.SiteID, expected[row.SiteID], row.Status)
		}
	}
}

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:syndication-runtime-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	client, err := persistence.New(testPersistenceConfig{dsn: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if _, err := syndicationmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == syndicationmigrations.DialectSQLite {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, syndicationmigrations.WithValidationTargets(syndicationmigrations.DialectSQLite)); err != nil {
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}
