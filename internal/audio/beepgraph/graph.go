/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package beepgraph renders the two-rail graph with gopxl/beep and plays it
// on the system speaker.
package beepgraph

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/audio"
)

var _ audio.Graph = (*Graph)(nil)

// DefaultTapSize is the number of mono samples kept for level analysis.
const DefaultTapSize = 4096

type rail struct {
	src  *source
	gain *audio.Automation
}

// Graph is a beep.Streamer summing both rails through their gains and the
// master gain. Its clock is the number of samples rendered, so it stands
// still while output is paused.
type Graph struct {
	format beep.Format
	logger zerolog.Logger
	ctrl   *beep.Ctrl

	mu      sync.Mutex
	pos     int
	rails   [2]rail
	master  *audio.Automation
	tap     *audio.Tap
	scratch [][2]float64
	closed  bool
	output  bool
}

// New creates a paused graph rendering at sr. Nothing is audible until the
// graph is handed to an output with Open.
func New(sr beep.SampleRate, tapSize int, logger zerolog.Logger) *Graph {
	if tapSize <= 0 {
		tapSize = DefaultTapSize
	}
	g := &Graph{
		format: beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2},
		logger: logger.With().Str("component", "beepgraph").Logger(),
		master: audio.NewAutomation(1),
		tap:    audio.NewTap(tapSize),
	}
	g.rails[audio.RailA].gain = audio.NewAutomation(0)
	g.rails[audio.RailB].gain = audio.NewAutomation(0)
	g.ctrl = &beep.Ctrl{Streamer: g, Paused: true}
	return g
}

// Open initializes the speaker and starts pulling from the graph. The
// output begins suspended; Resume unpauses it.
func Open(sr beep.SampleRate, bufferSize time.Duration, tapSize int, logger zerolog.Logger) (*Graph, error) {
	g := New(sr, tapSize, logger)
	if err := speaker.Init(sr, sr.N(bufferSize)); err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrPlatformUnavailable, err)
	}
	g.output = true
	speaker.Play(g.ctrl)
	g.logger.Info().Int("sample_rate", int(sr)).Dur("buffer", bufferSize).Msg("speaker opened")
	return g, nil
}

// Format returns the format every connected buffer must share.
func (g *Graph) Format() beep.Format { return g.format }

// Stream implements beep.Streamer. It never runs dry; silence is rendered
// when no rail has a source.
func (g *Graph) Stream(samples [][2]float64) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range samples {
		samples[i] = [2]float64{}
	}
	if cap(g.scratch) < len(samples) {
		g.scratch = make([][2]float64, len(samples))
	}
	scratch := g.scratch[:len(samples)]
	sr := g.format.SampleRate

	for r := range g.rails {
		rl := &g.rails[r]
		if rl.src == nil || rl.src.drained {
			continue
		}
		n, ok := rl.src.streamer.Stream(scratch)
		for i := 0; i < n; i++ {
			gain := rl.gain.ValueAt(sr.D(g.pos + i))
			samples[i][0] += scratch[i][0] * gain
			samples[i][1] += scratch[i][1] * gain
		}
		if !ok || n < len(scratch) {
			rl.src.drained = true
		}
	}

	for i := range samples {
		gain := g.master.ValueAt(sr.D(g.pos + i))
		l := clamp(samples[i][0] * gain)
		r := clamp(samples[i][1] * gain)
		samples[i] = [2]float64{l, r}
		g.tap.Write(l, r)
	}
	g.pos += len(samples)
	return len(samples), true
}

// Err implements beep.Streamer.
func (g *Graph) Err() error { return nil }

// CurrentTime implements audio.Graph.
func (g *Graph) CurrentTime() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.format.SampleRate.D(g.pos)
}

// Suspended implements audio.Graph.
func (g *Graph) Suspended() bool {
	g.lockOutput()
	defer g.unlockOutput()
	return g.ctrl.Paused
}

// Resume implements audio.Graph.
func (g *Graph) Resume() error {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return audio.ErrPlatformUnavailable
	}
	g.lockOutput()
	g.ctrl.Paused = false
	g.unlockOutput()
	g.logger.Debug().Msg("output resumed")
	return nil
}

func (g *Graph) lockOutput() {
	if g.output {
		speaker.Lock()
	}
}

func (g *Graph) unlockOutput() {
	if g.output {
		speaker.Unlock()
	}
}

// RailGain implements audio.Graph.
func (g *Graph) RailGain(r audio.Rail) audio.Param {
	return &param{g: g, auto: g.rails[r].gain}
}

// MasterGain implements audio.Graph.
func (g *Graph) MasterGain() audio.Param {
	return &param{g: g, auto: g.master}
}

// Connect implements audio.Graph.
func (g *Graph) Connect(r audio.Rail, buf audio.Buffer) (audio.Source, error) {
	b, ok := buf.(*Buffer)
	if !ok || b == nil {
		return nil, audio.ErrIncompatibleBuffer
	}
	if b.buf.Format().SampleRate != g.format.SampleRate {
		return nil, fmt.Errorf("%w: buffer at %d Hz, graph at %d Hz",
			audio.ErrIncompatibleBuffer, b.buf.Format().SampleRate, g.format.SampleRate)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, audio.ErrPlatformUnavailable
	}
	s := &source{g: g, rail: r, streamer: b.buf.Streamer(0, b.buf.Len())}
	g.rails[r].src = s
	return s, nil
}

// Levels implements audio.Graph.
func (g *Graph) Levels(bins int) []float64 {
	g.mu.Lock()
	samples := g.tap.Samples()
	g.mu.Unlock()
	return audio.Levels(samples, bins)
}

// Close implements audio.Graph.
func (g *Graph) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.rails[audio.RailA].src = nil
	g.rails[audio.RailB].src = nil
	g.mu.Unlock()

	if g.output {
		speaker.Clear()
		speaker.Close()
		g.logger.Info().Msg("speaker closed")
	}
	return nil
}

type source struct {
	g        *Graph
	rail     audio.Rail
	streamer beep.StreamSeeker
	drained  bool
}

func (s *source) Stop() {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	if s.g.rails[s.rail].src == s {
		s.g.rails[s.rail].src = nil
	}
	s.drained = true
}

type param struct {
	g    *Graph
	auto *audio.Automation
}

func (p *param) Value() float64 {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	return p.auto.ValueAt(p.g.format.SampleRate.D(p.g.pos))
}

func (p *param) SetValueAtTime(v float64, at time.Duration) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	p.auto.SetValueAtTime(v, at)
}

func (p *param) LinearRampToValueAtTime(v float64, at time.Duration) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	p.auto.LinearRampToValueAtTime(v, at)
}

func (p *param) CancelAndHoldAtTime(at time.Duration) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	p.auto.CancelAndHoldAtTime(at)
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
