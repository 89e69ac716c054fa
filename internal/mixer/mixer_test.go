/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mixer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/audio"
	"github.com/friendsincode/backdrop/internal/audio/virtual"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestNewLeavesGraphAlone(t *testing.T) {
	g := virtual.New()
	g.Rail(audio.RailA).SetValueAtTime(0.6, 0)
	New(g, 0, zerolog.Nop())
	if g.Rail(audio.RailA).Value() != 0.6 || g.Rail(audio.RailB).Value() != 0 {
		t.Errorf("gains A=%v B=%v changed by New", g.Rail(audio.RailA).Value(), g.Rail(audio.RailB).Value())
	}
}

func TestPlayOnRailWithoutFade(t *testing.T) {
	g := virtual.New()
	m := New(g, 0, zerolog.Nop())
	g.Rail(audio.RailB).SetValueAtTime(0.3, 0)

	if err := m.PlayOnRail(audio.RailB, &virtual.Buffer{Length: time.Minute}, 0); err != nil {
		t.Fatalf("PlayOnRail: %v", err)
	}
	if v := g.Rail(audio.RailB).Value(); v != 1 {
		t.Errorf("gain = %v, want 1", v)
	}
	if !m.hasSource(audio.RailB) || g.Audible(audio.RailB) != 1 {
		t.Error("rail B should have one source")
	}
}

func TestPlayOnRailReplacesSource(t *testing.T) {
	g := virtual.New()
	m := New(g, 0, zerolog.Nop())
	buf := &virtual.Buffer{Length: time.Minute}

	for i := 0; i < 3; i++ {
		if err := m.PlayOnRail(audio.RailA, buf, 0); err != nil {
			t.Fatal(err)
		}
		g.Advance(time.Second)
	}
	if g.DoubledSources() != 0 || g.Audible(audio.RailA) != 1 {
		t.Errorf("doubled=%d audible=%d, want 0/1", g.DoubledSources(), g.Audible(audio.RailA))
	}
	srcs := g.Sources()
	if len(srcs) != 3 || !srcs[0].Stopped() || !srcs[1].Stopped() || srcs[2].Stopped() {
		t.Error("previous sources should be stopped before reuse")
	}
}

func TestCrossfadeGainsStayBounded(t *testing.T) {
	g := virtual.New()
	m := New(g, 0, zerolog.Nop())
	buf := &virtual.Buffer{Length: time.Minute}
	fade := 2500 * time.Millisecond

	if err := m.PlayOnRail(audio.RailA, buf, 0); err != nil {
		t.Fatal(err)
	}
	g.Advance(10 * time.Second)
	if err := m.PlayOnRail(audio.RailB, buf, fade); err != nil {
		t.Fatal(err)
	}
	m.FadeOutRail(audio.RailA, fade)

	start := g.CurrentTime()
	for step := time.Duration(0); step <= fade; step += 100 * time.Millisecond {
		a := g.Rail(audio.RailA).ValueAt(start + step)
		b := g.Rail(audio.RailB).ValueAt(start + step)
		if a < 0 || a > 1 || b < 0 || b > 1 {
			t.Fatalf("gain out of range at %v: A=%v B=%v", step, a, b)
		}
		if !near(a+b, 1) {
			t.Fatalf("linear crossfade should sum to 1 at %v: A=%v B=%v", step, a, b)
		}
	}
	if !near(g.Rail(audio.RailA).ValueAt(start+fade), 0) || !near(g.Rail(audio.RailB).ValueAt(start+fade), 1) {
		t.Error("fade should end with A silent and B open")
	}
	if !m.hasSource(audio.RailA) {
		t.Error("FadeOutRail must not stop the source")
	}
}

func TestFadeOutFromHeldValue(t *testing.T) {
	g := virtual.New()
	m := New(g, 0, zerolog.Nop())
	if err := m.PlayOnRail(audio.RailB, &virtual.Buffer{Length: time.Minute}, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	g.Advance(time.Second)
	m.FadeOutRail(audio.RailB, time.Second)

	now := g.CurrentTime()
	if v := g.Rail(audio.RailB).ValueAt(now); !near(v, 0.5) {
		t.Errorf("fade-out should start at the held 0.5, got %v", v)
	}
	if v := g.Rail(audio.RailB).ValueAt(now + 500*time.Millisecond); !near(v, 0.25) {
		t.Errorf("midway = %v, want 0.25", v)
	}
}

func TestPlayOnRailNilBuffer(t *testing.T) {
	g := virtual.New()
	m := New(g, 0, zerolog.Nop())
	if err := m.PlayOnRail(audio.RailA, nil, time.Second); !errors.Is(err, ErrNoBuffer) {
		t.Fatalf("err = %v, want ErrNoBuffer", err)
	}
	if len(g.Sources()) != 0 {
		t.Error("nil buffer must not connect a source")
	}
}

func TestReset(t *testing.T) {
	g := virtual.New()
	m := New(g, 0, zerolog.Nop())
	buf := &virtual.Buffer{Length: time.Minute}
	_ = m.PlayOnRail(audio.RailA, buf, 0)
	_ = m.PlayOnRail(audio.RailB, buf, time.Second)

	m.Reset(audio.RailB)
	if m.hasSource(audio.RailA) || m.hasSource(audio.RailB) {
		t.Error("Reset should stop both rails")
	}
	if g.Audible(audio.RailA)+g.Audible(audio.RailB) != 0 {
		t.Error("graph still has audible sources")
	}
	if g.Rail(audio.RailB).Value() != 1 || g.Rail(audio.RailA).Value() != 0 {
		t.Error("Reset(B) should leave B open and A closed")
	}
}

func TestSetMasterRamps(t *testing.T) {
	g := virtual.New()
	m := New(g, 0, zerolog.Nop())
	m.SetMaster(0.4)

	if v := g.Master().Value(); v != 1 {
		t.Errorf("master should not jump, got %v", v)
	}
	g.Advance(25 * time.Millisecond)
	if v := g.Master().Value(); !near(v, 0.7) {
		t.Errorf("master midway = %v, want 0.7", v)
	}
	g.Advance(time.Second)
	if v := g.Master().Value(); !near(v, 0.4) {
		t.Errorf("master = %v, want 0.4", v)
	}

	m.SetMaster(3)
	g.Advance(time.Second)
	if v := g.Master().Value(); v != 1 {
		t.Errorf("master should clamp to 1, got %v", v)
	}
}
