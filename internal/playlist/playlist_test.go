/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"math/rand/v2"
	"sort"
	"testing"
)

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	sorted := append([]int(nil), order...)
	sort.Ints(sorted)
	for i, v := range sorted {
		if v != i {
			return false
		}
	}
	return true
}

func seeded(seed uint64) IntN {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return r.IntN
}

func TestShufflePermutation(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 7, 50} {
		for seed := uint64(0); seed < 20; seed++ {
			order := Shuffle(n, seeded(seed))
			if !isPermutation(order, n) {
				t.Fatalf("Shuffle(%d) seed %d = %v, not a permutation", n, seed, order)
			}
		}
	}
}

func TestShuffleIdentityWhenIntNReturnsTop(t *testing.T) {
	// j == i on every step leaves the identity permutation.
	order := Shuffle(4, func(n int) int { return n - 1 })
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want identity", order)
		}
	}
}

func TestShuffleCoversAllOrders(t *testing.T) {
	seen := map[[3]int]int{}
	intN := seeded(42)
	for i := 0; i < 6000; i++ {
		o := Shuffle(3, intN)
		seen[[3]int{o[0], o[1], o[2]}]++
	}
	if len(seen) != 6 {
		t.Fatalf("saw %d distinct orders of 3, want 6", len(seen))
	}
	for k, c := range seen {
		if c < 800 || c > 1200 {
			t.Errorf("order %v seen %d times, expected about 1000", k, c)
		}
	}
}

func TestSequencerReshufflesOnOverflow(t *testing.T) {
	s := NewSequencer(3, seeded(1))
	first := s.Order()
	if s.Current() != first[0] {
		t.Fatalf("Current = %d, want %d", s.Current(), first[0])
	}
	if got := s.Next(); got != first[1] {
		t.Errorf("Next = %d, want %d", got, first[1])
	}
	s.Next()
	s.Next()
	if s.Cursor() != 0 {
		t.Errorf("cursor = %d after overflow, want 0", s.Cursor())
	}
	if !isPermutation(s.Order(), 3) {
		t.Errorf("reshuffled order %v is not a permutation", s.Order())
	}
}

func TestSequencerPeekMatchesNext(t *testing.T) {
	s := NewSequencer(4, seeded(7))
	for i := 0; i < 25; i++ {
		peek := s.Peek()
		if again := s.Peek(); again != peek {
			t.Fatalf("Peek not stable: %d then %d", peek, again)
		}
		if got := s.Next(); got != peek {
			t.Fatalf("step %d: Next = %d, Peek said %d", i, got, peek)
		}
		if !isPermutation(s.Order(), 4) {
			t.Fatalf("order %v is not a permutation", s.Order())
		}
	}
}

func TestSequencerManualLoop(t *testing.T) {
	s := NewSequencer(5, seeded(3))
	cursor := s.Cursor()

	if s.SetManual(5) || s.SetManual(-1) {
		t.Fatal("out of range manual selection accepted")
	}
	if !s.SetManual(2) {
		t.Fatal("SetManual(2) rejected")
	}
	for i := 0; i < 4; i++ {
		if got := s.Next(); got != 2 {
			t.Fatalf("Next with manual = %d, want 2", got)
		}
	}
	if s.Current() != 2 || s.Peek() != 2 {
		t.Error("Current/Peek should report the manual index")
	}
	if s.Cursor() != cursor {
		t.Error("manual selection must not move the cursor")
	}

	s.ClearManual()
	if _, ok := s.Manual(); ok {
		t.Error("manual still set after ClearManual")
	}
	if s.Current() != s.Order()[s.Cursor()] {
		t.Error("Current should follow the order again")
	}
}

func TestSequencerEmpty(t *testing.T) {
	s := NewSequencer(0, nil)
	if s.Current() != -1 || s.Next() != -1 || s.Peek() != -1 {
		t.Error("empty sequencer should report -1")
	}
}
