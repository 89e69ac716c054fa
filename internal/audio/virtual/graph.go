/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package virtual is a deterministic, silent audio graph with a manual clock.
// It backs the simulate command and every engine test.
package virtual

import (
	"errors"
	"sync"
	"time"

	"github.com/friendsincode/backdrop/internal/audio"
	"github.com/friendsincode/backdrop/internal/clock"
)

var (
	_ audio.Graph = (*Graph)(nil)
	_ clock.Clock = (*Graph)(nil)
)

// Buffer is a silent buffer of a fixed length.
type Buffer struct {
	Name   string
	Length time.Duration
}

// Duration implements audio.Buffer.
func (b *Buffer) Duration() time.Duration { return b.Length }

// Graph records every source and gain change against a manually advanced clock.
type Graph struct {
	mu        sync.Mutex
	now       time.Duration
	suspended bool
	closed    bool
	resumes   int

	rails   [2]*Param
	master  *Param
	current [2]*Source
	history []*Source
	doubled int

	timers   []*timer
	timerSeq uint64
}

// New creates a running graph at time zero.
func New() *Graph {
	g := &Graph{}
	g.rails[audio.RailA] = &Param{g: g, auto: audio.NewAutomation(0)}
	g.rails[audio.RailB] = &Param{g: g, auto: audio.NewAutomation(0)}
	g.master = &Param{g: g, auto: audio.NewAutomation(1)}
	return g
}

// SetSuspended simulates the platform suspending its clock.
func (g *Graph) SetSuspended(s bool) {
	g.mu.Lock()
	g.suspended = s
	g.mu.Unlock()
}

// Resumes returns how often Resume was called.
func (g *Graph) Resumes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resumes
}

// CurrentTime implements audio.Graph.
func (g *Graph) CurrentTime() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now
}

// Suspended implements audio.Graph.
func (g *Graph) Suspended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspended
}

// Resume implements audio.Graph.
func (g *Graph) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return audio.ErrPlatformUnavailable
	}
	g.suspended = false
	g.resumes++
	return nil
}

// RailGain implements audio.Graph.
func (g *Graph) RailGain(r audio.Rail) audio.Param { return g.rails[r] }

// MasterGain implements audio.Graph.
func (g *Graph) MasterGain() audio.Param { return g.master }

// Rail returns the concrete gain of a rail for inspection.
func (g *Graph) Rail(r audio.Rail) *Param { return g.rails[r] }

// Master returns the concrete master gain for inspection.
func (g *Graph) Master() *Param { return g.master }

// Connect implements audio.Graph.
func (g *Graph) Connect(r audio.Rail, buf audio.Buffer) (audio.Source, error) {
	if buf == nil {
		return nil, errors.New("virtual: nil buffer")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, audio.ErrPlatformUnavailable
	}
	if prev := g.current[r]; prev != nil && prev.audibleLocked() {
		g.doubled++
	}
	s := &Source{g: g, Rail: r, Buffer: buf, StartedAt: g.now}
	g.current[r] = s
	g.history = append(g.history, s)
	return s, nil
}

// Levels implements audio.Graph. The virtual graph is silent.
func (g *Graph) Levels(bins int) []float64 {
	return audio.Levels(nil, bins)
}

// Close implements audio.Graph.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// Current returns the source connected to a rail, or nil.
func (g *Graph) Current(r audio.Rail) *Source {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current[r]
}

// Audible returns the number of sources on r that are connected and have not
// reached the end of their buffer.
func (g *Graph) Audible(r audio.Rail) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.history {
		if s.Rail == r && s.audibleLocked() {
			n++
		}
	}
	return n
}

// Sources returns every source ever connected, oldest first.
func (g *Graph) Sources() []*Source {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Source(nil), g.history...)
}

// DoubledSources counts connects that landed on a rail whose previous source
// was still playing.
func (g *Graph) DoubledSources() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.doubled
}

// Param is an automated gain on the virtual clock.
type Param struct {
	g    *Graph
	auto *audio.Automation
}

// Value implements audio.Param.
func (p *Param) Value() float64 {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	return p.auto.ValueAt(p.g.now)
}

// ValueAt evaluates the gain at an arbitrary time.
func (p *Param) ValueAt(t time.Duration) float64 {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	return p.auto.ValueAt(t)
}

// SetValueAtTime implements audio.Param.
func (p *Param) SetValueAtTime(v float64, at time.Duration) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	p.auto.SetValueAtTime(v, at)
}

// LinearRampToValueAtTime implements audio.Param.
func (p *Param) LinearRampToValueAtTime(v float64, at time.Duration) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	p.auto.LinearRampToValueAtTime(v, at)
}

// CancelAndHoldAtTime implements audio.Param.
func (p *Param) CancelAndHoldAtTime(at time.Duration) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	p.auto.CancelAndHoldAtTime(at)
}

// Source is a silent playback of a buffer.
type Source struct {
	g         *Graph
	Rail      audio.Rail
	Buffer    audio.Buffer
	StartedAt time.Duration
	stopped   bool
}

// Stop implements audio.Source.
func (s *Source) Stop() {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.stopped = true
	if s.g.current[s.Rail] == s {
		s.g.current[s.Rail] = nil
	}
}

// Stopped reports whether Stop was called.
func (s *Source) Stopped() bool {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return s.stopped
}

func (s *Source) audibleLocked() bool {
	return !s.stopped && s.g.now < s.StartedAt+s.Buffer.Duration()
}
