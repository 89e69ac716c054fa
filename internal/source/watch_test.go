/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/events"
)

type recordingInvalidator struct {
	mu     sync.Mutex
	themes []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, theme string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.themes = append(r.themes, theme)
	return nil
}

func waitLibraryChanged(t *testing.T, sub events.Subscriber) string {
	t.Helper()
	select {
	case payload := <-sub:
		theme, _ := payload["theme"].(string)
		return theme
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for library.changed")
		return ""
	}
}

func TestWatcherReportsThemeChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "forest", "a.mp3"), "a")

	bus := events.NewBus()
	sub := bus.Subscribe(events.EventLibraryChanged)
	inv := &recordingInvalidator{}

	w, err := NewWatcher(root, inv, bus, 20*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	writeFile(t, filepath.Join(root, "forest", "b.mp3"), "b")
	if theme := waitLibraryChanged(t, sub); theme != "forest" {
		t.Fatalf("unexpected theme %q", theme)
	}

	inv.mu.Lock()
	got := append([]string(nil), inv.themes...)
	inv.mu.Unlock()
	if len(got) == 0 || got[0] != "forest" {
		t.Fatalf("listing not invalidated: %v", got)
	}
}

func TestWatcherTheme(t *testing.T) {
	w := &Watcher{root: filepath.Clean("/srv/music")}
	tests := []struct {
		path string
		want string
	}{
		{"/srv/music/forest/a.mp3", "forest"},
		{"/srv/music/forest", "forest"},
		{"/srv/music", ""},
		{"/srv/music/.trash/a.mp3", ""},
		{"/elsewhere/a.mp3", ""},
	}
	for _, tt := range tests {
		if got := w.theme(tt.path); got != tt.want {
			t.Fatalf("theme(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
