/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package history keeps a bounded record of recently played tracks.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/friendsincode/backdrop/internal/events"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 500

// Entry is one track start.
type Entry struct {
	Time      time.Time `json:"time"`
	SessionID string    `json:"session_id"`
	Theme     string    `json:"theme"`
	Index     int       `json:"index"`
	Name      string    `json:"name,omitempty"`
	File      string    `json:"file,omitempty"`
	Reason    string    `json:"reason"`
	Rail      string    `json:"rail"`
	FadeMS    int64     `json:"fade_ms"`
}

// Buffer is a thread-safe ring buffer of entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
}

// New creates a buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add records an entry, evicting the oldest when full.
func (b *Buffer) Add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// All returns every entry, oldest first.
func (b *Buffer) All() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Entry, b.count)
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.capacity]
	}
	return result
}

// Query filters entries.
type Query struct {
	Theme      string
	SessionID  string
	Since      time.Time
	Limit      int  // 0 = all
	Descending bool // newest first
}

// Find returns the entries matching q. Limit applies after ordering, so a
// descending query returns the most recent entries.
func (b *Buffer) Find(q Query) []Entry {
	all := b.All()

	filtered := make([]Entry, 0, len(all))
	for _, entry := range all {
		if q.Theme != "" && entry.Theme != q.Theme {
			continue
		}
		if q.SessionID != "" && entry.SessionID != q.SessionID {
			continue
		}
		if !q.Since.IsZero() && entry.Time.Before(q.Since) {
			continue
		}
		filtered = append(filtered, entry)
	}

	if q.Descending {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}
	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[:q.Limit]
	}
	return filtered
}

// Stats summarizes the buffer.
type Stats struct {
	Capacity    int            `json:"capacity"`
	Count       int            `json:"count"`
	ReasonCount map[string]int `json:"reason_count"`
}

func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		Capacity:    b.capacity,
		Count:       b.count,
		ReasonCount: make(map[string]int),
	}
	for i := 0; i < b.count; i++ {
		stats.ReasonCount[b.entries[i].Reason]++
	}
	return stats
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

// Attach subscribes to now_playing events on bus and records them until ctx
// is done. The subscription is in place when Attach returns.
func (b *Buffer) Attach(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(events.EventNowPlaying)
	go func() {
		defer bus.Unsubscribe(events.EventNowPlaying, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-sub:
				if !ok {
					return
				}
				b.Add(FromPayload(time.Now(), p))
			}
		}
	}()
}

// FromPayload converts a now_playing payload. Missing fields stay zero.
func FromPayload(at time.Time, p events.Payload) Entry {
	e := Entry{Time: at}
	e.SessionID, _ = p["session_id"].(string)
	e.Theme, _ = p["theme"].(string)
	e.Name, _ = p["name"].(string)
	e.File, _ = p["file"].(string)
	e.Reason, _ = p["reason"].(string)
	e.Rail, _ = p["rail"].(string)
	switch v := p["index"].(type) {
	case int:
		e.Index = v
	case float64:
		e.Index = int(v)
	}
	switch v := p["fade_ms"].(type) {
	case int64:
		e.FadeMS = v
	case float64:
		e.FadeMS = int64(v)
	}
	return e
}
