/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog tracks the songs available for a theme and loads their
// decoded buffers on first use.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/friendsincode/backdrop/internal/audio"
	"github.com/friendsincode/backdrop/internal/events"
	"github.com/friendsincode/backdrop/internal/telemetry"
)

var (
	// ErrNoTracks is returned when a theme lists no playable files.
	ErrNoTracks = errors.New("no tracks")
	// ErrTrackUnavailable is returned when a track cannot be fetched or decoded.
	ErrTrackUnavailable = errors.New("track unavailable")
	// ErrStale is returned for loads that finished after the catalog was reset.
	ErrStale = errors.New("catalog reset during load")
)

// Lister returns the filenames available for a theme.
type Lister interface {
	ListTracks(ctx context.Context, theme string) ([]string, error)
}

// Fetcher opens the raw bytes of one track.
type Fetcher interface {
	Fetch(ctx context.Context, theme, filename string) (io.ReadCloser, error)
}

// Decoder turns raw bytes into a playable buffer. It takes ownership of r.
type Decoder interface {
	Decode(filename string, r io.ReadCloser) (audio.Buffer, error)
}

// Track is one entry of the catalog.
type Track struct {
	Index    int
	Filename string
	Name     string

	buffer  audio.Buffer
	loading bool
}

// TrackInfo is a read-only view of a Track.
type TrackInfo struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Loaded   bool   `json:"loaded"`
	Loading  bool   `json:"loading"`
}

// Config wires a catalog to its collaborators.
type Config struct {
	Lister      Lister
	Fetcher     Fetcher
	Decoder     Decoder
	Events      events.Publisher
	LoadTimeout time.Duration
}

// Catalog is the ordered track list of one theme.
type Catalog struct {
	lister      Lister
	fetcher     Fetcher
	decoder     Decoder
	bus         events.Publisher
	loadTimeout time.Duration
	logger      zerolog.Logger

	loads singleflight.Group

	mu     sync.RWMutex
	theme  string
	tracks []*Track
	epoch  uint64
	ready  bool
}

// New creates an empty catalog.
func New(cfg Config, logger zerolog.Logger) *Catalog {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard{}
	}
	return &Catalog{
		lister:      cfg.Lister,
		fetcher:     cfg.Fetcher,
		decoder:     cfg.Decoder,
		bus:         cfg.Events,
		loadTimeout: cfg.LoadTimeout,
		logger:      logger.With().Str("component", "catalog").Logger(),
	}
}

// Initialize discovers the theme's tracks and primes the one that opens
// playback. opening lists candidate indices for n tracks in preference
// order; nil means listing order. Candidates that fail to load are skipped.
// It returns the track count and the primed index.
func (c *Catalog) Initialize(ctx context.Context, theme string, opening func(n int) []int) (n, first int, err error) {
	n, err = c.Discover(ctx, theme)
	if err != nil {
		return 0, -1, err
	}

	var candidates []int
	if opening != nil {
		candidates = opening(n)
	} else {
		candidates = make([]int, n)
		for i := range candidates {
			candidates[i] = i
		}
	}

	err = fmt.Errorf("%w: no opening track for %s", ErrTrackUnavailable, theme)
	for _, idx := range candidates {
		if err = c.Prime(ctx, idx); err == nil {
			return n, idx, nil
		}
		if ctx.Err() != nil {
			return n, -1, ctx.Err()
		}
		c.logger.Warn().Err(err).Int("index", idx).Msg("opening track unavailable, trying next")
		telemetry.TracksSkippedTotal.WithLabelValues(theme).Inc()
	}
	return n, -1, err
}

// Discover replaces the track list with the theme's listing. Nothing is
// loaded. Loads still in flight for the previous list are discarded.
func (c *Catalog) Discover(ctx context.Context, theme string) (int, error) {
	names, err := c.lister.ListTracks(ctx, theme)
	if err != nil {
		c.logger.Warn().Err(err).Str("theme", theme).Msg("track listing failed")
		return 0, fmt.Errorf("list %s: %w: %w", theme, ErrNoTracks, err)
	}
	if len(names) == 0 {
		c.logger.Warn().Str("theme", theme).Msg("theme has no tracks")
		return 0, fmt.Errorf("list %s: %w", theme, ErrNoTracks)
	}

	tracks := make([]*Track, len(names))
	for i, name := range names {
		tracks[i] = &Track{Index: i, Filename: name, Name: DisplayName(name)}
	}

	c.mu.Lock()
	c.epoch++
	c.theme = theme
	c.tracks = tracks
	c.ready = false
	c.mu.Unlock()

	c.logger.Info().Str("theme", theme).Int("tracks", len(tracks)).Msg("catalog discovered")
	return len(tracks), nil
}

// Prime loads the track that will open playback and marks the catalog ready.
func (c *Catalog) Prime(ctx context.Context, index int) error {
	if _, err := c.EnsureLoaded(ctx, index); err != nil {
		return err
	}

	c.mu.Lock()
	if c.ready {
		c.mu.Unlock()
		return nil
	}
	c.ready = true
	theme := c.theme
	files := make([]string, len(c.tracks))
	for i, t := range c.tracks {
		files[i] = t.Filename
	}
	c.mu.Unlock()

	c.logger.Info().Str("theme", theme).Int("first", index).Msg("catalog ready")
	c.bus.Publish(events.EventCatalogReady, events.Payload{
		"theme": theme,
		"files": files,
	})
	return nil
}

// EnsureLoaded returns the decoded buffer for index, loading it if needed.
// Concurrent callers share one load. A caller whose ctx ends stops waiting
// but the load itself runs to completion.
func (c *Catalog) EnsureLoaded(ctx context.Context, index int) (audio.Buffer, error) {
	c.mu.RLock()
	if index < 0 || index >= len(c.tracks) {
		n := len(c.tracks)
		c.mu.RUnlock()
		return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrTrackUnavailable, index, n)
	}
	track := c.tracks[index]
	if track.buffer != nil {
		buf := track.buffer
		c.mu.RUnlock()
		return buf, nil
	}
	epoch, theme := c.epoch, c.theme
	c.mu.RUnlock()

	key := fmt.Sprintf("%d:%d", epoch, index)
	ch := c.loads.DoChan(key, func() (any, error) {
		return c.load(ctx, epoch, theme, track)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(audio.Buffer), nil
	}
}

func (c *Catalog) load(parent context.Context, epoch uint64, theme string, track *Track) (buf audio.Buffer, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.loadTimeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "catalog", "catalog.load",
		telemetry.TrackAttributes(theme, track.Index, track.Filename)...)
	defer func() { telemetry.EndSpan(span, err) }()

	c.mu.Lock()
	if track.buffer != nil {
		// A previous flight for this key finished between our check and DoChan.
		buf = track.buffer
		c.mu.Unlock()
		return buf, nil
	}
	if c.epoch == epoch {
		track.loading = true
	}
	c.mu.Unlock()

	start := time.Now()
	buf, err = c.fetchAndDecode(ctx, theme, track.Filename)
	telemetry.TrackLoadDuration.WithLabelValues(theme).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		telemetry.TrackLoadsTotal.WithLabelValues(theme, "stale").Inc()
		c.logger.Debug().Str("file", track.Filename).Msg("discarding load for previous catalog")
		return nil, fmt.Errorf("%w: %s: %w", ErrTrackUnavailable, track.Filename, ErrStale)
	}
	track.loading = false
	if err == nil {
		track.buffer = buf
	}
	c.mu.Unlock()

	if err != nil {
		telemetry.TrackLoadsTotal.WithLabelValues(theme, "error").Inc()
		c.logger.Warn().Err(err).Str("theme", theme).Str("file", track.Filename).Msg("track unavailable")
		c.bus.Publish(events.EventTrackUnavailable, events.Payload{
			"theme": theme,
			"index": track.Index,
			"file":  track.Filename,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %s: %w", ErrTrackUnavailable, track.Filename, err)
	}

	telemetry.TrackLoadsTotal.WithLabelValues(theme, "ok").Inc()
	c.logger.Debug().
		Str("file", track.Filename).
		Dur("duration", buf.Duration()).
		Dur("elapsed", time.Since(start)).
		Msg("track loaded")
	return buf, nil
}

func (c *Catalog) fetchAndDecode(ctx context.Context, theme, filename string) (audio.Buffer, error) {
	rc, err := c.fetcher.Fetch(ctx, theme, filename)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	buf, err := c.decoder.Decode(filename, rc)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if buf == nil || buf.Duration() <= 0 {
		return nil, errors.New("decode: empty buffer")
	}
	return buf, nil
}

// Buffer returns the loaded buffer for index or nil.
func (c *Catalog) Buffer(index int) audio.Buffer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.tracks) {
		return nil
	}
	return c.tracks[index].buffer
}

// Loaded reports whether index has a buffer.
func (c *Catalog) Loaded(index int) bool {
	return c.Buffer(index) != nil
}

// Len returns the number of tracks.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}

// Ready reports whether the opening track has been loaded.
func (c *Catalog) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Theme returns the theme of the current listing.
func (c *Catalog) Theme() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.theme
}

// Track returns one entry by index.
func (c *Catalog) Track(index int) (TrackInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.tracks) {
		return TrackInfo{}, false
	}
	return info(c.tracks[index]), true
}

// Tracks returns every entry in listing order.
func (c *Catalog) Tracks() []TrackInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TrackInfo, len(c.tracks))
	for i, t := range c.tracks {
		out[i] = info(t)
	}
	return out
}

// Reset empties the catalog. Loads in flight are discarded when they finish.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.tracks = nil
	c.ready = false
}

func info(t *Track) TrackInfo {
	return TrackInfo{
		Index:    t.Index,
		Filename: t.Filename,
		Name:     t.Name,
		Loaded:   t.buffer != nil,
		Loading:  t.loading,
	}
}
