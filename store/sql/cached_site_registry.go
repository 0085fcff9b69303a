package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-syndication/core"
)

const siteCacheKeyPrefix = "go-syndication::site::v1"

type SiteSource interface {
	GetSites(ctx context.Context, siteIDs []string) (map[string]core.Site, error)
	Upsert(ctx context.Context, site core.Site) (core.Site, error)
}

// CachedSiteRegistry memoizes per-site lookups, including misses, for the
// cache TTL. Upsert through the registry invalidates the entry.
type CachedSiteRegistry struct {
	base  SiteSource
	cache repositorycache.CacheService
}

type cachedSite struct {
	Site  core.Site
	Found bool
}

func NewCachedSiteRegistry(base SiteSource, cacheService repositorycache.CacheService) (*CachedSiteRegistry, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base site source is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: site cache service is required")
	}
	return &CachedSiteRegistry{base: base, cache: cacheService}, nil
}

// SiteCacheKey returns go-syndication::site::v1::<site_id> with the id
// URL-path escaped.
func SiteCacheKey(siteID string) string {
	return siteCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(siteID))
}

func (r *CachedSiteRegistry) GetSites(ctx context.Context, siteIDs []string) (map[string]core.Site, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached site registry is not configured")
	}
	ids := trimIDs(siteIDs)
	out := make(map[string]core.Site, len(ids))
	for _, id := range ids {
		entry, err := repositorycache.GetOrFetch(ctx, r.cache, SiteCacheKey(id), func(ctx context.Context) (cachedSite, error) {
			sites, fetchErr := r.base.GetSites(ctx, []string{id})
			if fetchErr != nil {
				return cachedSite{}, fetchErr
			}
			site, ok := sites[id]
			return cachedSite{Site: site, Found: ok}, nil
		})
		if err != nil {
			return nil, err
		}
		if entry.Found {
			out[id] = entry.Site
		}
	}
	return out, nil
}

func (r *CachedSiteRegistry) Upsert(ctx context.Context, site core.Site) (core.Site, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.Site{}, fmt.Errorf("sqlstore: cached site registry is not configured")
	}
	saved, err := r.base.Upsert(ctx, site)
	if err != nil {
		return core.Site{}, err
	}
	if err := r.Invalidate(ctx, saved.ID); err != nil {
		return core.Site{}, err
	}
	return saved, nil
}

func (r *CachedSiteRegistry) Invalidate(ctx context.Context, siteID string) error {
	if r == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached site registry is not configured")
	}
	return r.cache.Delete(ctx, SiteCacheKey(siteID))
}
