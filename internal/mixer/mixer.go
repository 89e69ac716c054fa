/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mixer drives the two rails of an audio graph.
package mixer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/audio"
)

// DefaultMasterRamp is the ramp applied to master gain changes.
const DefaultMasterRamp = 50 * time.Millisecond

// ErrNoBuffer is returned when asked to play an absent buffer.
var ErrNoBuffer = errors.New("no buffer")

// Mixer owns the per-rail sources of a graph. Each rail holds at most one
// source at a time.
type Mixer struct {
	graph      audio.Graph
	masterRamp time.Duration
	logger     zerolog.Logger

	mu      sync.Mutex
	sources [2]audio.Source
}

// New creates a mixer over graph. It leaves the graph untouched until the
// first call, so a replacement mixer can be built while another still plays.
func New(graph audio.Graph, masterRamp time.Duration, logger zerolog.Logger) *Mixer {
	if masterRamp <= 0 {
		masterRamp = DefaultMasterRamp
	}
	return &Mixer{
		graph:      graph,
		masterRamp: masterRamp,
		logger:     logger.With().Str("component", "mixer").Logger(),
	}
}

// PlayOnRail replaces whatever plays on rail with a fresh source for buf. A
// positive fade ramps the rail gain from 0 to 1, otherwise the rail opens at
// full gain immediately.
func (m *Mixer) PlayOnRail(rail audio.Rail, buf audio.Buffer, fade time.Duration) error {
	if buf == nil {
		m.logger.Warn().Str("rail", rail.String()).Msg("play requested without a buffer")
		return ErrNoBuffer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old := m.sources[rail]; old != nil {
		old.Stop()
		m.sources[rail] = nil
	}

	now := m.graph.CurrentTime()
	gain := m.graph.RailGain(rail)
	gain.CancelAndHoldAtTime(now)
	if fade > 0 {
		gain.SetValueAtTime(0, now)
		gain.LinearRampToValueAtTime(1, now+fade)
	} else {
		gain.SetValueAtTime(1, now)
	}

	src, err := m.graph.Connect(rail, buf)
	if err != nil {
		gain.SetValueAtTime(0, now)
		return fmt.Errorf("connect rail %s: %w", rail, err)
	}
	m.sources[rail] = src

	m.logger.Debug().
		Str("rail", rail.String()).
		Dur("fade", fade).
		Dur("length", buf.Duration()).
		Msg("rail started")
	return nil
}

// FadeOutRail ramps rail from its current gain to silence. The source keeps
// playing until the rail is reused or reset.
func (m *Mixer) FadeOutRail(rail audio.Rail, fade time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.graph.CurrentTime()
	gain := m.graph.RailGain(rail)
	gain.CancelAndHoldAtTime(now)
	if fade <= 0 {
		gain.SetValueAtTime(0, now)
		return
	}
	gain.SetValueAtTime(gain.Value(), now)
	gain.LinearRampToValueAtTime(0, now+fade)
}

// Reset stops both rails and restores the steady-state gains: active open,
// idle closed.
func (m *Mixer) Reset(active audio.Rail) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, src := range m.sources {
		if src != nil {
			src.Stop()
			m.sources[i] = nil
		}
	}
	now := m.graph.CurrentTime()
	for _, r := range []audio.Rail{audio.RailA, audio.RailB} {
		gain := m.graph.RailGain(r)
		gain.CancelAndHoldAtTime(now)
		if r == active {
			gain.SetValueAtTime(1, now)
		} else {
			gain.SetValueAtTime(0, now)
		}
	}
}

// SetMaster ramps master gain toward target.
func (m *Mixer) SetMaster(target float64) {
	target = clamp01(target)
	now := m.graph.CurrentTime()
	master := m.graph.MasterGain()
	master.CancelAndHoldAtTime(now)
	master.SetValueAtTime(master.Value(), now)
	master.LinearRampToValueAtTime(target, now+m.masterRamp)
}

// hasSource reports whether rail currently holds a source.
func (m *Mixer) hasSource(rail audio.Rail) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources[rail] != nil
}

// Levels forwards to the graph's analysis tap.
func (m *Mixer) Levels(bins int) []float64 {
	return m.graph.Levels(bins)
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
