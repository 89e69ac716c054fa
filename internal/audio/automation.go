/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"sort"
	"time"
)

type automationKind int

const (
	automationSet automationKind = iota
	automationRamp
)

type automationEvent struct {
	kind  automationKind
	value float64
	at    time.Duration
}

// Automation is a gain timeline with set and linear-ramp events. Values are
// clamped to [0,1]. It is not safe for concurrent use; graphs guard it.
type Automation struct {
	base     float64
	baseTime time.Duration
	events   []automationEvent
}

// NewAutomation creates a timeline holding initial until the first event.
func NewAutomation(initial float64) *Automation {
	return &Automation{base: clamp01(initial)}
}

// SetValueAtTime jumps to v at the given time.
func (a *Automation) SetValueAtTime(v float64, at time.Duration) {
	a.insert(automationEvent{kind: automationSet, value: clamp01(v), at: at})
}

// LinearRampToValueAtTime ramps linearly from the previous event's value so
// that v is reached exactly at the given time.
func (a *Automation) LinearRampToValueAtTime(v float64, at time.Duration) {
	a.insert(automationEvent{kind: automationRamp, value: clamp01(v), at: at})
}

// CancelAndHoldAtTime freezes the timeline at its value at the given time.
func (a *Automation) CancelAndHoldAtTime(at time.Duration) {
	a.base = a.ValueAt(at)
	a.baseTime = at
	a.events = a.events[:0]
}

// ValueAt evaluates the timeline.
func (a *Automation) ValueAt(t time.Duration) float64 {
	value := a.base
	prevTime := a.baseTime
	for _, ev := range a.events {
		if ev.at <= t {
			value = ev.value
			prevTime = ev.at
			continue
		}
		if ev.kind == automationRamp {
			span := ev.at - prevTime
			if span <= 0 || t <= prevTime {
				return value
			}
			progress := float64(t-prevTime) / float64(span)
			return value + (ev.value-value)*progress
		}
		return value
	}
	return value
}

// settled reports whether no event is scheduled after t.
func (a *Automation) settled(t time.Duration) bool {
	return len(a.events) == 0 || a.events[len(a.events)-1].at <= t
}

func (a *Automation) insert(ev automationEvent) {
	i := sort.Search(len(a.events), func(i int) bool { return a.events[i].at > ev.at })
	a.events = append(a.events, automationEvent{})
	copy(a.events[i+1:], a.events[i:])
	a.events[i] = ev
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
