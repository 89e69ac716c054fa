/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist produces the shuffled play order for a catalog.
package playlist

import "math/rand/v2"

// IntN returns a uniform integer in [0, n).
type IntN func(n int) int

// Shuffle returns an unbiased Fisher-Yates permutation of [0, n).
func Shuffle(n int, intN IntN) []int {
	if n <= 0 {
		return nil
	}
	if intN == nil {
		intN = rand.IntN
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := intN(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Sequencer walks a shuffled order and reshuffles when it runs out. A manual
// selection pins Current and Next to one index until cleared.
// Sequencer is not safe for concurrent use; the engine serializes access.
type Sequencer struct {
	n      int
	intN   IntN
	order  []int
	cursor int
	// upcoming is the order generated early by Peek.
	upcoming []int

	manual    int
	hasManual bool
}

// NewSequencer shuffles an order for n tracks.
func NewSequencer(n int, intN IntN) *Sequencer {
	if intN == nil {
		intN = rand.IntN
	}
	return &Sequencer{n: n, intN: intN, order: Shuffle(n, intN)}
}

// Len returns the number of tracks being sequenced.
func (s *Sequencer) Len() int { return s.n }

// Order returns a copy of the current permutation.
func (s *Sequencer) Order() []int {
	return append([]int(nil), s.order...)
}

// Cursor returns the position within Order.
func (s *Sequencer) Cursor() int { return s.cursor }

// Current returns the track under the cursor, or the manual selection.
func (s *Sequencer) Current() int {
	if s.hasManual {
		return s.manual
	}
	if s.n == 0 {
		return -1
	}
	return s.order[s.cursor]
}

// Next advances and returns the new current track. With a manual selection
// the cursor does not move.
func (s *Sequencer) Next() int {
	if s.hasManual {
		return s.manual
	}
	if s.n == 0 {
		return -1
	}
	s.cursor++
	if s.cursor >= len(s.order) {
		s.order = s.upcoming
		if s.order == nil {
			s.order = Shuffle(s.n, s.intN)
		}
		s.upcoming = nil
		s.cursor = 0
	}
	return s.order[s.cursor]
}

// Peek returns the track Next would return without advancing. When the order
// is exhausted the next order is generated now so Peek and Next agree.
func (s *Sequencer) Peek() int {
	if s.hasManual {
		return s.manual
	}
	if s.n == 0 {
		return -1
	}
	if s.cursor+1 >= len(s.order) {
		if s.upcoming == nil {
			s.upcoming = Shuffle(s.n, s.intN)
		}
		return s.upcoming[0]
	}
	return s.order[s.cursor+1]
}

// SetManual pins playback to index. Returns false if index is out of range.
func (s *Sequencer) SetManual(index int) bool {
	if index < 0 || index >= s.n {
		return false
	}
	s.manual = index
	s.hasManual = true
	return true
}

// ClearManual returns to auto-cycling.
func (s *Sequencer) ClearManual() {
	s.hasManual = false
}

// Manual returns the pinned index if any.
func (s *Sequencer) Manual() (int, bool) {
	return s.manual, s.hasManual
}
