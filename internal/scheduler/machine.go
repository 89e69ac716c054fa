/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler decides what plays on which rail and when the next
// crossfade fires.
//
// Every armed timer and every in-flight transition carries the generation it
// was issued under. Any stop, selection or committed transition bumps the
// generation, so late callbacks find themselves stale and do nothing.
package scheduler

import (
	"time"

	"github.com/friendsincode/backdrop/internal/audio"
	"github.com/friendsincode/backdrop/internal/playlist"
)

// AutoCycle clears a manual selection.
const AutoCycle = -1

// Reason says what triggered a transition.
type Reason string

const (
	ReasonStart  Reason = "start"
	ReasonAuto   Reason = "auto"
	ReasonManual Reason = "manual"
)

// Transition is a pending move to Track. It stays valid until the machine's
// generation moves past Token.
type Transition struct {
	Token  uint64
	Track  int
	Reason Reason
}

// Plan tells the caller what to do with the rails and when to fire next.
type Plan struct {
	Generation uint64
	Track      int
	Rail       audio.Rail
	FadeIn     time.Duration
	// FadeOut is set when OutRail must ramp down over FadeIn.
	FadeOut bool
	OutRail audio.Rail
	FireIn  time.Duration
	Reason  Reason
}

// State is a snapshot of the machine.
type State struct {
	Playing    bool
	Active     audio.Rail
	Current    int
	Generation uint64
	Fade       time.Duration
}

// Machine is the crossfade state machine. It is not safe for concurrent
// use; the engine calls it under its own lock.
type Machine struct {
	seq       *playlist.Sequencer
	crossfade time.Duration

	gen     uint64
	playing bool
	active  audio.Rail
	current int
	// fade is the window of the track now playing.
	fade time.Duration
}

// NewMachine creates a stopped machine over seq.
func NewMachine(seq *playlist.Sequencer, crossfade time.Duration) *Machine {
	return &Machine{
		seq:       seq,
		crossfade: crossfade,
		current:   seq.Current(),
		fade:      crossfade,
	}
}

// Current returns the track that plays, or will play on start.
func (m *Machine) Current() int { return m.current }

// Playing reports whether the machine is started.
func (m *Machine) Playing() bool { return m.playing }

// Active returns the rail carrying the current track.
func (m *Machine) Active() audio.Rail { return m.active }

// AutoCycling reports whether no manual selection is set.
func (m *Machine) AutoCycling() bool {
	_, manual := m.seq.Manual()
	return !manual
}

// Snapshot returns the machine state.
func (m *Machine) Snapshot() State {
	return State{
		Playing:    m.playing,
		Active:     m.active,
		Current:    m.current,
		Generation: m.gen,
		Fade:       m.fade,
	}
}

// OnStart begins playback of Current on rail A with no fade. length is the
// duration of that track's buffer.
func (m *Machine) OnStart(length time.Duration) (Plan, bool) {
	if m.playing {
		return Plan{}, false
	}
	m.playing = true
	m.active = audio.RailA
	m.gen++

	fade, fireIn := Window(length, m.crossfade)
	m.fade = fade
	return Plan{
		Generation: m.gen,
		Track:      m.current,
		Rail:       m.active,
		FireIn:     fireIn,
		Reason:     ReasonStart,
	}, true
}

// OnStop halts the machine and invalidates every timer and transition.
// It reports whether the machine was playing.
func (m *Machine) OnStop() bool {
	m.gen++
	if !m.playing {
		return false
	}
	m.playing = false
	return true
}

// OnCrossfadeFire handles a timer armed under gen. Stale or stopped timers
// yield no transition.
func (m *Machine) OnCrossfadeFire(gen uint64) (Transition, bool) {
	if !m.playing || gen != m.gen {
		return Transition{}, false
	}
	m.gen++
	return Transition{Token: m.gen, Track: m.seq.Next(), Reason: ReasonAuto}, true
}

// OnManualSelect applies a selection. index is a catalog index or AutoCycle.
// Out-of-range indices are rejected with ok=false and change nothing. When
// playing, the returned transition is live and should be committed at once.
// While stopped, a manual index becomes Current; AutoCycle keeps Current,
// since the sequencer cursor may sit on a track that never loaded.
func (m *Machine) OnManualSelect(index int) (tr Transition, live, ok bool) {
	if index == AutoCycle {
		m.seq.ClearManual()
	} else if !m.seq.SetManual(index) {
		return Transition{}, false, false
	}

	if !m.playing {
		if index != AutoCycle {
			m.current = index
		}
		return Transition{}, false, true
	}

	target := index
	if index == AutoCycle {
		target = m.seq.Next()
	}
	m.gen++
	return Transition{Token: m.gen, Track: target, Reason: ReasonManual}, true, true
}

// Live reports whether a transition or timer token is still current.
func (m *Machine) Live(token uint64) bool {
	return m.playing && token == m.gen
}

// Commit completes tr once its buffer of the given length is ready: the idle
// rail fades in while the active one fades out, then the rails flip.
func (m *Machine) Commit(tr Transition, length time.Duration) (Plan, bool) {
	if !m.Live(tr.Token) {
		return Plan{}, false
	}
	out := m.active
	in := out.Other()

	nextFade, fireIn := Window(length, m.crossfade)
	fade := m.fade
	if nextFade < fade {
		fade = nextFade
	}

	m.active = in
	m.current = tr.Track
	m.fade = nextFade
	m.gen++
	return Plan{
		Generation: m.gen,
		Track:      tr.Track,
		Rail:       in,
		FadeIn:     fade,
		FadeOut:    true,
		OutRail:    out,
		FireIn:     fireIn,
		Reason:     tr.Reason,
	}, true
}

// Skip moves tr past a track that failed to load. Manual selections have no
// alternative and are not skipped.
func (m *Machine) Skip(tr Transition) (Transition, bool) {
	if !m.Live(tr.Token) {
		return Transition{}, false
	}
	if _, manual := m.seq.Manual(); manual {
		return Transition{}, false
	}
	return Transition{Token: tr.Token, Track: m.seq.Next(), Reason: tr.Reason}, true
}

// Retry abandons tr and returns the generation for a retry timer.
func (m *Machine) Retry(tr Transition) (uint64, bool) {
	if !m.Live(tr.Token) {
		return 0, false
	}
	m.gen++
	return m.gen, true
}

// Len returns the number of tracks in rotation.
func (m *Machine) Len() int { return m.seq.Len() }

// Upcoming returns the track the next auto transition would pick.
func (m *Machine) Upcoming() int { return m.seq.Peek() }
