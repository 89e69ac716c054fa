/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine is the playback controller of one theme. It ties the
// catalog, sequencer, mixer and crossfade machine together behind a small
// control surface.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/friendsincode/backdrop/internal/audio"
	"github.com/friendsincode/backdrop/internal/catalog"
	"github.com/friendsincode/backdrop/internal/clock"
	"github.com/friendsincode/backdrop/internal/events"
	"github.com/friendsincode/backdrop/internal/mixer"
	"github.com/friendsincode/backdrop/internal/playlist"
	"github.com/friendsincode/backdrop/internal/scheduler"
	"github.com/friendsincode/backdrop/internal/telemetry"
)

// AutoCycle passed to SelectSong returns to shuffled playback.
const AutoCycle = scheduler.AutoCycle

var (
	// ErrNotReady is returned while no track list or audio output is available.
	ErrNotReady = errors.New("engine not ready")
	// ErrInvalidSelection is returned for song indices outside the catalog.
	ErrInvalidSelection = errors.New("invalid song selection")
)

// Options tune one engine.
type Options struct {
	Theme      string
	Crossfade  time.Duration
	MasterRamp time.Duration
	Volume     float64
	Muted      bool
	// Prefetch warms the next track as soon as a track starts.
	Prefetch bool
	// RetryDelay is how long to wait before trying again when no upcoming
	// track could be loaded.
	RetryDelay time.Duration
	// IntN overrides the shuffle source.
	IntN playlist.IntN
}

// DefaultOptions returns the stock engine settings.
func DefaultOptions(theme string) Options {
	return Options{
		Theme:      theme,
		Crossfade:  2500 * time.Millisecond,
		MasterRamp: mixer.DefaultMasterRamp,
		Volume:     0.5,
		Prefetch:   true,
		RetryDelay: 5 * time.Second,
	}
}

// Engine plays one theme. All methods are safe for concurrent use.
type Engine struct {
	id     string
	opts   Options
	logger zerolog.Logger

	cat   *catalog.Catalog
	graph audio.Graph
	clock clock.Clock
	mixer *mixer.Mixer
	bus   events.Publisher

	// ctx bounds background loads; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	machine *scheduler.Machine
	volume  float64
	muted   bool
	closed  bool
	timer   clock.Timer
}

// New creates an engine. A nil graph yields an engine that never becomes
// ready; every operation on it is a safe no-op.
func New(opts Options, cat *catalog.Catalog, graph audio.Graph, clk clock.Clock, bus events.Publisher, logger zerolog.Logger) *Engine {
	if opts.Crossfade <= 0 {
		opts.Crossfade = DefaultOptions("").Crossfade
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultOptions("").RetryDelay
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if bus == nil {
		bus = events.Discard{}
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(telemetry.WithPlayback(context.Background(), opts.Theme, id))
	e := &Engine{
		id:     id,
		opts:   opts,
		logger: logger.With().Str("component", "engine").Str("session", id).Str("theme", opts.Theme).Logger(),
		cat:    cat,
		graph:  graph,
		clock:  clk,
		bus:    bus,
		ctx:    ctx,
		cancel: cancel,
		volume: clamp01(opts.Volume),
		muted:  opts.Muted,
	}
	if graph != nil {
		e.mixer = mixer.New(graph, opts.MasterRamp, logger)
	}
	return e
}

// SessionID identifies this engine in logs and events.
func (e *Engine) SessionID() string { return e.id }

// Theme returns the theme this engine plays.
func (e *Engine) Theme() string { return e.opts.Theme }

// Init discovers the theme's tracks and loads the first one in shuffled
// order. Tracks that fail to load are skipped until one succeeds.
func (e *Engine) Init(ctx context.Context) error {
	if e.graph == nil {
		e.logger.Warn().Msg("no audio output; engine stays unready")
		return fmt.Errorf("%w: %w", ErrNotReady, audio.ErrPlatformUnavailable)
	}

	var seq *playlist.Sequencer
	n, first, err := e.cat.Initialize(telemetry.WithPlayback(ctx, e.opts.Theme, e.id), e.opts.Theme, func(n int) []int {
		seq = playlist.NewSequencer(n, e.opts.IntN)
		return seq.Order()
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	// Move the cursor past the openers that failed.
	for i := 0; i < n && seq.Current() != first; i++ {
		seq.Next()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrNotReady
	}
	e.machine = scheduler.NewMachine(seq, e.opts.Crossfade)
	e.logger.Info().Int("tracks", n).Int("first", first).Int("skipped", seq.Cursor()).Msg("engine ready")
	e.publishStateLocked()
	return nil
}

// Start begins playback of the current track on rail A. It does nothing if
// already playing or if the opening track is not loaded yet.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.machine == nil {
		return ErrNotReady
	}
	if e.machine.Playing() {
		return nil
	}
	idx := e.machine.Current()
	buf := e.cat.Buffer(idx)
	if buf == nil {
		e.logger.Debug().Int("index", idx).Msg("start ignored, track not loaded")
		return nil
	}

	if e.graph.Suspended() {
		if err := e.graph.Resume(); err != nil {
			e.logger.Error().Err(err).Msg("resume audio output")
			return fmt.Errorf("resume audio: %w", err)
		}
	}

	e.mixer.Reset(audio.RailA)
	plan, _ := e.machine.OnStart(buf.Duration())
	if err := e.mixer.PlayOnRail(plan.Rail, buf, 0); err != nil {
		e.machine.OnStop()
		e.logger.Error().Err(err).Msg("start playback")
		return err
	}
	e.applyMasterLocked()
	e.armLocked(plan.Generation, plan.FireIn)

	telemetry.PlaybackActive.WithLabelValues(e.opts.Theme).Set(1)
	e.logger.Info().Int("index", plan.Track).Dur("next_in", plan.FireIn).Msg("playback started")
	e.publishNowPlayingLocked(plan)
	e.publishStateLocked()
	e.prefetchLocked()
	return nil
}

// Stop silences both rails and cancels the pending crossfade. Stopping a
// stopped engine does nothing.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine == nil {
		return nil
	}
	if e.stopLocked() {
		e.logger.Info().Msg("playback stopped")
		e.publishStateLocked()
	}
	return nil
}

func (e *Engine) stopLocked() bool {
	wasPlaying := e.machine.OnStop()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if !wasPlaying {
		return false
	}
	e.mixer.Reset(e.machine.Active())
	telemetry.PlaybackActive.WithLabelValues(e.opts.Theme).Set(0)
	return true
}

// TogglePlayback starts a stopped engine or stops a playing one.
func (e *Engine) TogglePlayback(ctx context.Context) error {
	e.mu.Lock()
	playing := e.machine != nil && e.machine.Playing()
	e.mu.Unlock()
	if playing {
		return e.Stop()
	}
	return e.Start(ctx)
}

// SetVolume stores v clamped to [0,1] and ramps master gain toward it unless
// muted. Without an audio output nothing changes.
func (e *Engine) SetVolume(v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mixer == nil || e.closed {
		return ErrNotReady
	}
	e.volume = clamp01(v)
	e.applyMasterLocked()
	e.publishStateLocked()
	return nil
}

// ToggleMute flips mute and returns the new state. The stored volume is
// never touched.
func (e *Engine) ToggleMute() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mixer == nil || e.closed {
		return e.muted, ErrNotReady
	}
	e.muted = !e.muted
	e.applyMasterLocked()
	e.publishStateLocked()
	return e.muted, nil
}

func (e *Engine) applyMasterLocked() {
	target := e.volume
	if e.muted {
		target = 0
	}
	e.mixer.SetMaster(target)
	telemetry.MasterGain.WithLabelValues(e.opts.Theme).Set(target)
}

// SelectSong pins playback to index, or returns to shuffled playback for
// AutoCycle. While playing, the crossfade to the new track starts at once.
// While stopped, the selected track is loaded before the selection is
// accepted, and AutoCycle leaves the next start on the last played track.
func (e *Engine) SelectSong(ctx context.Context, index int) error {
	e.mu.Lock()
	if e.closed || e.machine == nil {
		e.mu.Unlock()
		return ErrNotReady
	}
	if index != AutoCycle && (index < 0 || index >= e.machine.Len()) {
		n := e.machine.Len()
		e.mu.Unlock()
		e.logger.Warn().Int("index", index).Int("tracks", n).Msg("rejecting song selection")
		return fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidSelection, index, n)
	}
	playing := e.machine.Playing()
	e.mu.Unlock()

	if !playing && index != AutoCycle {
		if _, err := e.cat.EnsureLoaded(ctx, index); err != nil {
			e.logger.Warn().Err(err).Int("index", index).Msg("selected song unavailable")
			return err
		}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrNotReady
	}
	tr, live, ok := e.machine.OnManualSelect(index)
	if !ok {
		e.mu.Unlock()
		return ErrInvalidSelection
	}
	e.logger.Info().Int("index", index).Bool("playing", live).Msg("song selected")
	if !live {
		e.publishStateLocked()
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	e.advance(tr)
	return nil
}

// onFire runs when a crossfade timer armed under gen expires.
func (e *Engine) onFire(gen uint64) {
	e.mu.Lock()
	if e.closed || e.machine == nil {
		e.mu.Unlock()
		return
	}
	tr, ok := e.machine.OnCrossfadeFire(gen)
	e.mu.Unlock()
	if !ok {
		return
	}
	e.advance(tr)
}

// advance loads tr's track and commits the crossfade. Unloadable tracks are
// skipped; when nothing loads, the current track keeps playing and a retry
// is armed.
func (e *Engine) advance(tr scheduler.Transition) {
	ctx, span := telemetry.StartSpan(e.ctx, "engine", "engine.transition",
		telemetry.AttrReason.String(string(tr.Reason)))
	defer span.End()

	for attempt := 1; ; attempt++ {
		buf, err := e.cat.EnsureLoaded(ctx, tr.Track)

		e.mu.Lock()
		if e.closed || !e.machine.Live(tr.Token) {
			e.mu.Unlock()
			span.AddEvent("superseded")
			return
		}
		if err == nil {
			if plan, ok := e.machine.Commit(tr, buf.Duration()); ok {
				e.applyLocked(plan, buf)
				span.SetAttributes(telemetry.AttrTrackIndex.Int(plan.Track))
			}
			e.mu.Unlock()
			return
		}

		telemetry.TracksSkippedTotal.WithLabelValues(e.opts.Theme).Inc()
		e.logger.Warn().Err(err).Int("index", tr.Track).Msg("skipping unavailable track")
		span.AddEvent("track skipped", trace.WithAttributes(telemetry.AttrTrackIndex.Int(tr.Track)))

		next, ok := scheduler.Transition{}, false
		if attempt < e.machine.Len() {
			next, ok = e.machine.Skip(tr)
		}
		if !ok {
			if gen, live := e.machine.Retry(tr); live {
				e.logger.Warn().Dur("retry_in", e.opts.RetryDelay).Msg("no upcoming track available")
				e.armLocked(gen, e.opts.RetryDelay)
			}
			e.mu.Unlock()
			telemetry.FailSpan(span, err)
			return
		}
		tr = next
		e.mu.Unlock()
	}
}

func (e *Engine) applyLocked(plan scheduler.Plan, buf audio.Buffer) {
	if err := e.mixer.PlayOnRail(plan.Rail, buf, plan.FadeIn); err != nil {
		e.logger.Error().Err(err).Int("index", plan.Track).Msg("crossfade failed")
		return
	}
	if plan.FadeOut {
		e.mixer.FadeOutRail(plan.OutRail, plan.FadeIn)
	}
	e.armLocked(plan.Generation, plan.FireIn)

	telemetry.CrossfadesTotal.WithLabelValues(e.opts.Theme, string(plan.Reason)).Inc()
	e.logger.Info().
		Int("index", plan.Track).
		Str("rail", plan.Rail.String()).
		Dur("fade", plan.FadeIn).
		Str("reason", string(plan.Reason)).
		Msg("crossfade")
	e.publishNowPlayingLocked(plan)
	e.publishStateLocked()
	e.prefetchLocked()
}

// armLocked replaces the pending timer with one for gen.
func (e *Engine) armLocked(gen uint64, d time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = e.clock.AfterFunc(d, func() { e.onFire(gen) })
}

func (e *Engine) prefetchLocked() {
	if !e.opts.Prefetch {
		return
	}
	idx := e.machine.Upcoming()
	if idx < 0 || e.cat.Loaded(idx) {
		return
	}
	go func() {
		if _, err := e.cat.EnsureLoaded(e.ctx, idx); err != nil && e.ctx.Err() == nil {
			e.logger.Debug().Err(err).Int("index", idx).Msg("prefetch failed")
		}
	}()
}

// Levels returns the output level split into bins, or nil without audio.
func (e *Engine) Levels(bins int) []float64 {
	if e.mixer == nil {
		return nil
	}
	return e.mixer.Levels(bins)
}

// Close stops playback and discards the catalog. In-flight loads finish as
// no-ops. The audio graph is left open for the next engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if e.machine != nil {
		e.stopLocked()
	}
	e.closed = true
	e.cancel()
	e.cat.Reset()
	e.logger.Debug().Msg("engine closed")
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
