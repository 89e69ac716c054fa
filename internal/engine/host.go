/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/audio"
	"github.com/friendsincode/backdrop/internal/catalog"
	"github.com/friendsincode/backdrop/internal/clock"
	"github.com/friendsincode/backdrop/internal/events"
)

// Host owns the audio output and the engine of the active theme.
type Host struct {
	base   Options
	cfg    catalog.Config
	graph  audio.Graph
	clock  clock.Clock
	bus    events.Publisher
	logger zerolog.Logger

	switchMu sync.Mutex

	mu     sync.RWMutex
	engine *Engine
}

// NewHost creates a host with no theme loaded. base is copied into every
// engine it builds; Theme, Volume and Muted are overridden per switch.
func NewHost(base Options, cfg catalog.Config, graph audio.Graph, clk clock.Clock, bus events.Publisher, logger zerolog.Logger) *Host {
	if bus == nil {
		bus = events.Discard{}
	}
	cfg.Events = bus
	return &Host{
		base:   base,
		cfg:    cfg,
		graph:  graph,
		clock:  clk,
		bus:    bus,
		logger: logger,
	}
}

// Engine returns the active engine, or nil before the first switch.
func (h *Host) Engine() *Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

// SwitchTheme builds and initializes an engine for theme, then tears the
// previous one down and carries over volume, mute and play state. If the new
// theme cannot be initialized the previous engine keeps playing.
func (h *Host) SwitchTheme(ctx context.Context, theme string) error {
	h.switchMu.Lock()
	defer h.switchMu.Unlock()

	old := h.Engine()
	opts := h.base
	opts.Theme = theme
	wasPlaying := false
	if old != nil {
		st := old.State()
		opts.Volume, opts.Muted, wasPlaying = st.Volume, st.Muted, st.Playing
	}

	next := New(opts, catalog.New(h.cfg, h.logger), h.graph, h.clock, h.bus, h.logger)
	if err := next.Init(ctx); err != nil {
		if old != nil {
			_ = next.Close()
			return fmt.Errorf("switch to %s: %w", theme, err)
		}
		// Keep the unready engine so callers still see a state.
		h.setEngine(next)
		return fmt.Errorf("load %s: %w", theme, err)
	}

	if old != nil {
		_ = old.Close()
	}
	h.setEngine(next)

	from := ""
	if old != nil {
		from = old.Theme()
	}
	h.logger.Info().Str("from", from).Str("to", theme).Str("session", next.SessionID()).Msg("theme switched")
	h.bus.Publish(events.EventThemeChanged, events.Payload{
		"theme":      theme,
		"previous":   from,
		"session_id": next.SessionID(),
	})

	if wasPlaying {
		return next.Start(ctx)
	}
	return nil
}

func (h *Host) setEngine(e *Engine) {
	h.mu.Lock()
	h.engine = e
	h.mu.Unlock()
}

// Close tears down the active engine and the audio output.
func (h *Host) Close() error {
	h.switchMu.Lock()
	defer h.switchMu.Unlock()
	if e := h.Engine(); e != nil {
		_ = e.Close()
	}
	if h.graph != nil {
		return h.graph.Close()
	}
	return nil
}
