/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/events"
)

// DefaultDebounce groups bursts of file events (a copy of many tracks) into
// one change per theme.
const DefaultDebounce = 500 * time.Millisecond

// Invalidator drops cached state of a theme.
type Invalidator interface {
	Invalidate(ctx context.Context, theme string) error
}

// Watcher reports changes under a filesystem media root per theme.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	inv      Invalidator
	bus      events.Publisher
	debounce time.Duration
	logger   zerolog.Logger
}

// NewWatcher watches root and each theme directory below it. inv may be nil.
func NewWatcher(root string, inv Invalidator, bus events.Publisher, debounce time.Duration, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if bus == nil {
		bus = events.Discard{}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		root:     filepath.Clean(root),
		watcher:  fw,
		inv:      inv,
		bus:      bus,
		debounce: debounce,
		logger:   logger.With().Str("component", "library_watcher").Logger(),
	}

	if err := fw.Add(w.root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("read media root: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.add(filepath.Join(w.root, e.Name()))
		}
	}
	return w, nil
}

func (w *Watcher) add(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch theme directory")
	}
}

// theme maps an event path to the theme directory it belongs to.
func (w *Watcher) theme(name string) string {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	theme, _, _ := strings.Cut(rel, string(filepath.Separator))
	if strings.HasPrefix(theme, ".") {
		return ""
	}
	return theme
}

// Run handles events until ctx ends. It closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			theme := w.theme(ev.Name)
			if theme == "" {
				continue
			}
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == w.root {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.add(ev.Name)
				}
			}
			pending[theme] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("library watcher error")

		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[string]struct{})
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	themes := make([]string, 0, len(pending))
	for theme := range pending {
		themes = append(themes, theme)
	}
	sort.Strings(themes)

	for _, theme := range themes {
		if w.inv != nil {
			if err := w.inv.Invalidate(ctx, theme); err != nil {
				w.logger.Warn().Err(err).Str("theme", theme).Msg("listing invalidation failed")
			}
		}
		w.logger.Info().Str("theme", theme).Msg("library changed")
		w.bus.Publish(events.EventLibraryChanged, events.Payload{"theme": theme})
	}
}
