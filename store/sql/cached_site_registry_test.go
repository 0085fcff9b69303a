package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-syndication/core"
)

type stubSiteSource struct {
	mu          sync.Mutex
	sites       map[string]core.Site
	getCalls    map[string]int
	upsertCalls int
	getErr      error
}

func newStubSiteSource(sites ...core.Site) *stubSiteSource {
	s := &stubSiteSource{sites: map[string]core.Site{}, getCalls: map[string]int{}}
	for _, site := range sites {
		s.sites[site.ID] = site
	}
	return s
}

func (s *stubSiteSource) GetSites(_ context.Context, siteIDs []string) (map[string]core.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]core.Site{}
	for _, id := range siteIDs {
		s.getCalls[id]++
		if s.getErr != nil {
			return nil, s.getErr
		}
		if site, ok := s.sites[id]; ok {
			out[id] = site
		}
	}
	return out, nil
}

func (s *stubSiteSource) Upsert(_ context.Context, site core.Site) (core.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	s.sites[site.ID] = site
	return site, nil
}

func (s *stubSiteSource) calls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls[id]
}

func TestCachedSiteRegistry_MissFetchThenHit(t *testing.T) {
	base := newStubSiteSource(core.Site{ID: "site-a", Name: "Site A", WebhookURL: "https://a.example.com/hooks"})
	registry, err := NewCachedSiteRegistry(base, newTestSiteCacheService(t))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx := context.Background()

	for range 2 {
		sites, err := registry.GetSites(ctx, []string{"site-a", "site-missing"})
		if err != nil {
			t.Fatalf("get sites: %v", err)
		}
		if len(sites) != 1 || sites["site-a"].Name != "Site A" {
			t.Fatalf("unexpected sites: %#v", sites)
		}
	}
	if got := base.calls("site-a"); got != 1 {
		t.Fatalf("expected one base fetch for site-a, got %d", got)
	}
	if got := base.calls("site-missing"); got != 1 {
		t.Fatalf("expected misses to be cached, got %d fetches", got)
	}
}

func TestCachedSiteRegistry_UpsertInvalidates(t *testing.T) {
	base := newStubSiteSource(core.Site{ID: "site-a", Name: "Old"})
	registry, err := NewCachedSiteRegistry(base, newTestSiteCacheService(t))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx := context.Background()

	if _, err := registry.GetSites(ctx, []string{"site-a"}); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := registry.Upsert(ctx, core.Site{ID: "site-a", Name: "New"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	sites, err := registry.GetSites(ctx, []string{"site-a"})
	if err != nil {
		t.Fatalf("get sites: %v", err)
	}
	if sites["site-a"].Name != "New" {
		t.Fatalf("expected fresh site after upsert, got %#v", sites["site-a"])
	}
	if base.upsertCalls != 1 || base.calls("site-a") != 2 {
		t.Fatalf("expected refetch after invalidation, upserts=%d fetches=%d", base.upsertCalls, base.calls("site-a"))
	}
}

func TestCachedSiteRegistry_FetchErrorIsNotCached(t *testing.T) {
	base := newStubSiteSource(core.Site{ID: "site-a"})
	base.getErr = errors.New("db down")
	registry, err := NewCachedSiteRegistry(base, newTestSiteCacheService(t))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx := context.Background()
	if _, err := registry.GetSites(ctx, []string{"site-a"}); !errors.Is(err, base.getErr) {
		t.Fatalf("expected base error, got %v", err)
	}

	base.mu.Lock()
	base.getErr = nil
	base.mu.Unlock()
	sites, err := registry.GetSites(ctx, []string{"site-a"})
	if err != nil {
		t.Fatalf("get sites after recovery: %v", err)
	}
	if _, ok := sites["site-a"]; !ok {
		t.Fatalf("expected site after recovery")
	}
}

func TestSiteCacheKey(t *testing.T) {
	if got := SiteCacheKey(" partner/one "); got != "go-syndication::site::v1::partner%2Fone" {
		t.Fatalf("unexpected cache key %q", got)
	}
	if _, err := NewCachedSiteRegistry(nil, newTestSiteCacheService(t)); err == nil {
		t.Fatalf("expected missing base error")
	}
}

func newTestSiteCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
