package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const directoryCacheKeyPrefix = "go-certidigital::directory::v1"

// ReferenceSource serves the reference data listings of the API.
type ReferenceSource interface {
	UserInfo(ctx context.Context) (json.RawMessage, error)
	IssuingCenters(ctx context.Context) (json.RawMessage, error)
	Organizations(ctx context.Context) (json.RawMessage, error)
}

// CachedDirectory memoizes the reference data listings, which change rarely
// and are read before every build run.
type CachedDirectory struct {
	base  ReferenceSource
	cache repositorycache.CacheService
	scope string
}

// NewCachedDirectory caches base under scope, usually the API base URL and
// the username so two accounts never share entries.
func NewCachedDirectory(base ReferenceSource, cacheService repositorycache.CacheService, scope string) (*CachedDirectory, error) {
	if base == nil {
		return nil, fmt.Errorf("client: directory source is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("client: directory cache service is required")
	}
	return &CachedDirectory{base: base, cache: cacheService, scope: strings.TrimSpace(scope)}, nil
}

// DirectoryCacheKey returns go-certidigital::directory::v1::<scope>::<listing>
// with the scope URL-path escaped.
func DirectoryCacheKey(scope string, listing string) string {
	return strings.Join([]string{
		directoryCacheKeyPrefix,
		url.PathEscape(strings.TrimSpace(scope)),
		url.PathEscape(strings.TrimSpace(listing)),
	}, "::")
}

func (d *CachedDirectory) UserInfo(ctx context.Context) (json.RawMessage, error) {
	return d.get(ctx, "user_info", ReferenceSource.UserInfo)
}

func (d *CachedDirectory) IssuingCenters(ctx context.Context) (json.RawMessage, error) {
	return d.get(ctx, "issuing_centers", ReferenceSource.IssuingCenters)
}

func (d *CachedDirectory) Organizations(ctx context.Context) (json.RawMessage, error) {
	return d.get(ctx, "organizations", ReferenceSource.Organizations)
}

// Invalidate drops every cached listing of the scope.
func (d *CachedDirectory) Invalidate(ctx context.Context) error {
	if d == nil || d.cache == nil {
		return fmt.Errorf("client: cached directory is not configured")
	}
	for _, listing := range []string{"user_info", "issuing_centers", "organizations"} {
		if err := d.cache.Delete(ctx, DirectoryCacheKey(d.scope, listing)); err != nil {
			return err
		}
	}
	return nil
}

func (d *CachedDirectory) get(
	ctx context.Context,
	listing string,
	fetch func(ReferenceSource, context.Context) (json.RawMessage, error),
) (json.RawMessage, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return nil, fmt.Errorf("client: cached directory is not configured")
	}
	payload, err := repositorycache.GetOrFetch(ctx, d.cache, DirectoryCacheKey(d.scope, listing), func(ctx context.Context) ([]byte, error) {
		raw, fetchErr := fetch(d.base, ctx)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return append([]byte(nil), raw...), nil
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(append([]byte(nil), payload...)), nil
}

var _ ReferenceSource = (*CachedDirectory)(nil)
var _ ReferenceSource = (*Client)(nil)
