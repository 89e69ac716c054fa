/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio defines the platform audio graph the engine drives: two
// buffer-backed rails, each behind its own gain, summed into a master gain
// and an analysis tap before the output.
package audio

import (
	"errors"
	"time"
)

// ErrPlatformUnavailable is returned when no audio output can be constructed.
var ErrPlatformUnavailable = errors.New("audio platform unavailable")

// ErrIncompatibleBuffer is returned when a graph is handed a buffer decoded by
// a different backend.
var ErrIncompatibleBuffer = errors.New("incompatible audio buffer")

// Rail identifies one of the two mixer channels.
type Rail int

const (
	RailA Rail = iota
	RailB
)

// Other returns the opposite rail.
func (r Rail) Other() Rail {
	if r == RailA {
		return RailB
	}
	return RailA
}

func (r Rail) String() string {
	if r == RailA {
		return "A"
	}
	return "B"
}

// Buffer is a fully decoded, playable piece of audio.
type Buffer interface {
	Duration() time.Duration
}

// Source is a buffer playing on a rail. Stopping it disconnects it from the
// graph; a stopped source never plays again.
type Source interface {
	Stop()
}

// Param is a gain value automated against the graph clock.
type Param interface {
	// Value returns the value at the graph's current time.
	Value() float64
	SetValueAtTime(v float64, at time.Duration)
	LinearRampToValueAtTime(v float64, at time.Duration)
	// CancelAndHoldAtTime drops every scheduled change and freezes the
	// parameter at whatever value it has at the given time.
	CancelAndHoldAtTime(at time.Duration)
}

// Graph is the fixed rail A/B -> master -> tap -> output topology.
type Graph interface {
	CurrentTime() time.Duration
	Suspended() bool
	Resume() error
	RailGain(r Rail) Param
	MasterGain() Param
	// Connect starts a fresh source for buf on rail r at offset zero.
	Connect(r Rail, buf Buffer) (Source, error)
	// Levels returns the RMS level of the most recent output split into bins.
	Levels(bins int) []float64
	Close() error
}
