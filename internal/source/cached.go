/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"

	"github.com/rs/zerolog"
)

// ListingCache stores theme listings. *cache.Cache implements it.
type ListingCache interface {
	GetListing(ctx context.Context, scope, theme string) ([]string, bool)
	SetListing(ctx context.Context, scope, theme string, files []string) error
	InvalidateListing(ctx context.Context, scope, theme string) error
}

// Cached serves listings from a cache before asking the wrapped source.
// Fetches always go to the wrapped source.
type Cached struct {
	Source
	cache  ListingCache
	scope  string
	logger zerolog.Logger
}

// NewCached wraps src. scope separates listings of different sources that
// share one cache.
func NewCached(src Source, cache ListingCache, scope string, logger zerolog.Logger) *Cached {
	return &Cached{
		Source: src,
		cache:  cache,
		scope:  scope,
		logger: logger.With().Str("component", "source").Str("source", "cached").Logger(),
	}
}

// ListTracks returns the cached listing or lists and caches it. Empty
// listings are not cached.
func (c *Cached) ListTracks(ctx context.Context, theme string) ([]string, error) {
	if files, ok := c.cache.GetListing(ctx, c.scope, theme); ok && len(files) > 0 {
		return files, nil
	}
	files, err := c.Source.ListTracks(ctx, theme)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		if err := c.cache.SetListing(ctx, c.scope, theme, files); err != nil {
			c.logger.Debug().Err(err).Str("theme", theme).Msg("listing not cached")
		}
	}
	return files, nil
}

// Invalidate drops the cached listing of theme.
func (c *Cached) Invalidate(ctx context.Context, theme string) error {
	return c.cache.InvalidateListing(ctx, c.scope, theme)
}

// Themes delegates to the wrapped source.
func (c *Cached) Themes(ctx context.Context) ([]string, error) {
	return Themes(ctx, c.Source)
}
