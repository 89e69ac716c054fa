/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package history

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/backdrop/internal/events"
)

func TestBufferWrapsOldestFirst(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Add(Entry{Index: i})
	}
	all := b.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, want := range []int{2, 3, 4} {
		if all[i].Index != want {
			t.Fatalf("entry %d = %d, want %d", i, all[i].Index, want)
		}
	}

	b.Clear()
	if got := len(b.All()); got != 0 {
		t.Fatalf("cleared buffer holds %d entries", got)
	}
}

func TestFind(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := New(10)
	b.Add(Entry{Time: base, Theme: "forest", Index: 0, Reason: "start"})
	b.Add(Entry{Time: base.Add(time.Minute), Theme: "forest", Index: 1, Reason: "auto"})
	b.Add(Entry{Time: base.Add(2 * time.Minute), Theme: "ocean", Index: 0, Reason: "start"})
	b.Add(Entry{Time: base.Add(3 * time.Minute), Theme: "ocean", Index: 1, Reason: "manual"})

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"all", Query{}, []string{"forest0", "forest1", "ocean0", "ocean1"}},
		{"theme", Query{Theme: "forest"}, []string{"forest0", "forest1"}},
		{"since", Query{Since: base.Add(90 * time.Second)}, []string{"ocean0", "ocean1"}},
		{"latest two", Query{Limit: 2, Descending: true}, []string{"ocean1", "ocean0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Find(tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				key := e.Theme + string(rune('0'+e.Index))
				if key != tt.want[i] {
					t.Fatalf("entry %d = %s, want %s", i, key, tt.want[i])
				}
			}
		})
	}

	stats := b.Stats()
	if stats.Count != 4 || stats.ReasonCount["start"] != 2 || stats.ReasonCount["manual"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestFromPayload(t *testing.T) {
	at := time.Now()
	e := FromPayload(at, events.Payload{
		"session_id": "s1",
		"theme":      "forest",
		"index":      2,
		"name":       "Creek",
		"file":       "creek.mp3",
		"reason":     "auto",
		"rail":       "B",
		"fade_ms":    int64(2500),
	})
	want := Entry{Time: at, SessionID: "s1", Theme: "forest", Index: 2, Name: "Creek", File: "creek.mp3", Reason: "auto", Rail: "B", FadeMS: 2500}
	if e != want {
		t.Fatalf("got %+v, want %+v", e, want)
	}

	// Payloads relayed as JSON carry numbers as float64.
	e = FromPayload(at, events.Payload{"index": float64(4), "fade_ms": float64(250)})
	if e.Index != 4 || e.FadeMS != 250 {
		t.Fatalf("float payload not converted: %+v", e)
	}
}

func TestAttach(t *testing.T) {
	bus := events.NewBus()
	b := New(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Attach(ctx, bus)

	bus.Publish(events.EventNowPlaying, events.Payload{"theme": "forest", "index": 1})

	deadline := time.Now().Add(2 * time.Second)
	for len(b.All()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("entry not recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := b.All()[0]; got.Theme != "forest" || got.Index != 1 {
		t.Fatalf("unexpected entry %+v", got)
	}
}
