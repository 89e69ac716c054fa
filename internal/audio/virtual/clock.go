/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package virtual

import (
	"time"

	"github.com/friendsincode/backdrop/internal/clock"
)

type timer struct {
	g       *Graph
	due     time.Duration
	seq     uint64
	f       func()
	stopped bool
	fired   bool
}

// Stop implements clock.Timer.
func (t *timer) Stop() bool {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// AfterFunc implements clock.Clock on the graph's own timeline.
func (g *Graph) AfterFunc(d time.Duration, f func()) clock.Timer {
	if d < 0 {
		d = 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timerSeq++
	t := &timer{g: g, due: g.now + d, seq: g.timerSeq, f: f}
	g.timers = append(g.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers in order on the
// calling goroutine.
func (g *Graph) Advance(d time.Duration) {
	g.mu.Lock()
	target := g.now + d
	g.mu.Unlock()

	for {
		g.mu.Lock()
		next := g.nextDueLocked(target)
		if next == nil {
			g.now = target
			g.pruneLocked()
			g.mu.Unlock()
			return
		}
		if next.due > g.now {
			g.now = next.due
		}
		next.fired = true
		g.mu.Unlock()

		next.f()
	}
}

// Pending returns the number of armed timers.
func (g *Graph) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, t := range g.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// NextDue returns the delay until the earliest armed timer.
func (g *Graph) NextDue() (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.nextDueLocked(1<<62 - 1)
	if t == nil {
		return 0, false
	}
	return t.due - g.now, true
}

func (g *Graph) nextDueLocked(limit time.Duration) *timer {
	var best *timer
	for _, t := range g.timers {
		if t.stopped || t.fired || t.due > limit {
			continue
		}
		if best == nil || t.due < best.due || (t.due == best.due && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (g *Graph) pruneLocked() {
	live := g.timers[:0]
	for _, t := range g.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	g.timers = live
}
