/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/backdrop/internal/audio/virtual"
	"github.com/friendsincode/backdrop/internal/catalog"
	"github.com/friendsincode/backdrop/internal/engine"
	"github.com/friendsincode/backdrop/internal/events"
	"github.com/friendsincode/backdrop/internal/history"
)

// themeLibrary lists fixed themes and serves empty bodies.
type themeLibrary map[string][]string

func (l themeLibrary) ListTracks(_ context.Context, theme string) ([]string, error) {
	names, ok := l[theme]
	if !ok {
		return nil, fmt.Errorf("theme %q not found", theme)
	}
	return names, nil
}

func (l themeLibrary) Fetch(_ context.Context, _, filename string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(filename)), nil
}

func (l themeLibrary) Themes(context.Context) ([]string, error) {
	themes := make([]string, 0, len(l))
	for theme := range l {
		themes = append(themes, theme)
	}
	sort.Strings(themes)
	return themes, nil
}

type testEnv struct {
	srv   *httptest.Server
	host  *engine.Host
	graph *virtual.Graph
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	lib := themeLibrary{
		"forest": {"birds.mp3", "creek.mp3", "wind.mp3"},
		"ocean":  {"waves.mp3", "gulls.mp3"},
	}
	bus := events.NewBus()
	g := virtual.New()

	opts := engine.DefaultOptions("")
	opts.Prefetch = false
	opts.IntN = func(n int) int { return n - 1 }
	host := engine.NewHost(opts, catalog.Config{
		Lister:  lib,
		Fetcher: lib,
		Decoder: virtual.Decoder{Length: time.Minute},
	}, g, g, bus, zerolog.Nop())

	played := history.New(10)
	ctx, cancel := context.WithCancel(context.Background())
	played.Attach(ctx, bus)

	s := New(Config{Addr: "127.0.0.1:0", PingInterval: time.Hour}, host, bus, lib, played, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = host.Close()
	})
	return &testEnv{srv: srv, host: host, graph: g}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, env.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (env *testEnv) state(t *testing.T, method, path string, body any) engine.State {
	t.Helper()
	status, data := env.do(t, method, path, body)
	if status != http.StatusOK {
		t.Fatalf("%s %s: status %d: %s", method, path, status, data)
	}
	var st engine.State
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func TestPlayerNotReadyBeforeTheme(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodGet, "/api/player", nil)
	if status != http.StatusConflict || !strings.Contains(string(body), "not_ready") {
		t.Fatalf("expected 409 not_ready, got %d %s", status, body)
	}

	status, _ = env.do(t, http.MethodGet, "/healthz", nil)
	if status != http.StatusOK {
		t.Fatalf("healthz: %d", status)
	}
}

func TestPlayerControls(t *testing.T) {
	env := newTestEnv(t)

	st := env.state(t, http.MethodPut, "/api/theme", map[string]string{"theme": "forest"})
	if st.Theme != "forest" || !st.Ready || st.Playing || len(st.AvailableSongs) != 3 {
		t.Fatalf("unexpected state after theme switch: %+v", st)
	}

	st = env.state(t, http.MethodPost, "/api/player/start", nil)
	if !st.Playing || st.CurrentSong == nil || st.CurrentSong.Index != 0 {
		t.Fatalf("unexpected state after start: %+v", st)
	}

	st = env.state(t, http.MethodPut, "/api/player/volume", map[string]float64{"volume": 0.2})
	if st.Volume != 0.2 {
		t.Fatalf("volume not applied: %+v", st)
	}

	st = env.state(t, http.MethodPost, "/api/player/mute", nil)
	if !st.Muted || st.Volume != 0.2 {
		t.Fatalf("mute changed volume or did not mute: %+v", st)
	}

	st = env.state(t, http.MethodPut, "/api/player/song", map[string]int{"index": 1})
	if st.AutoCycling || st.CurrentSong == nil || st.CurrentSong.Index != 1 {
		t.Fatalf("song selection not applied: %+v", st)
	}

	st = env.state(t, http.MethodPut, "/api/player/song", map[string]int{"index": -1})
	if !st.AutoCycling {
		t.Fatalf("expected auto cycling again: %+v", st)
	}

	st = env.state(t, http.MethodPost, "/api/player/toggle", nil)
	if st.Playing {
		t.Fatalf("toggle should stop playback: %+v", st)
	}
	st = env.state(t, http.MethodPost, "/api/player/stop", nil)
	if st.Playing {
		t.Fatalf("stop of stopped engine should be a no-op: %+v", st)
	}
}

func TestPlayerRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)
	env.state(t, http.MethodPut, "/api/theme", map[string]string{"theme": "forest"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"song out of range", http.MethodPut, "/api/player/song", map[string]int{"index": 9}, http.StatusBadRequest, "invalid_selection"},
		{"song missing index", http.MethodPut, "/api/player/song", map[string]string{}, http.StatusBadRequest, "index_required"},
		{"volume missing", http.MethodPut, "/api/player/volume", map[string]string{}, http.StatusBadRequest, "volume_required"},
		{"bad json", http.MethodPut, "/api/player/volume", "nope", http.StatusBadRequest, "invalid_json"},
		{"bad history limit", http.MethodGet, "/api/player/history?limit=x", nil, http.StatusBadRequest, "invalid_limit"},
		{"zero bins", http.MethodGet, "/api/player/levels?bins=0", nil, http.StatusBadRequest, "invalid_bins"},
		{"theme missing", http.MethodPut, "/api/theme", map[string]string{}, http.StatusBadRequest, "theme_required"},
		{"unknown theme", http.MethodPut, "/api/theme", map[string]string{"theme": "desert"}, http.StatusNotFound, "no_tracks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, tt.body)
			if status != tt.status || !strings.Contains(string(body), tt.code) {
				t.Fatalf("got %d %s, want %d %s", status, body, tt.status, tt.code)
			}
		})
	}

	// A failed switch keeps the previous theme.
	st := env.state(t, http.MethodGet, "/api/player", nil)
	if st.Theme != "forest" {
		t.Fatalf("theme changed after failed switch: %s", st.Theme)
	}
}

func TestLevelsAndThemes(t *testing.T) {
	env := newTestEnv(t)
	env.state(t, http.MethodPut, "/api/theme", map[string]string{"theme": "ocean"})

	status, body := env.do(t, http.MethodGet, "/api/player/levels?bins=4", nil)
	if status != http.StatusOK {
		t.Fatalf("levels: %d %s", status, body)
	}
	var levels struct {
		Levels []float64 `json:"levels"`
	}
	if err := json.Unmarshal(body, &levels); err != nil || len(levels.Levels) != 4 {
		t.Fatalf("unexpected levels %s (%v)", body, err)
	}

	status, body = env.do(t, http.MethodGet, "/api/themes", nil)
	if status != http.StatusOK {
		t.Fatalf("themes: %d %s", status, body)
	}
	var themes struct {
		Themes  []string `json:"themes"`
		Current string   `json:"current"`
	}
	if err := json.Unmarshal(body, &themes); err != nil {
		t.Fatalf("decode themes: %v", err)
	}
	if len(themes.Themes) != 2 || themes.Current != "ocean" {
		t.Fatalf("unexpected themes %+v", themes)
	}
}

func TestStreamPushesState(t *testing.T) {
	env := newTestEnv(t)
	env.state(t, http.MethodPut, "/api/theme", map[string]string{"theme": "forest"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(env.srv.URL, "http")+"/api/player/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	var first streamMessage
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.State == nil || first.State.Theme != "forest" || first.State.Playing {
		t.Fatalf("unexpected initial snapshot: %+v", first)
	}

	env.state(t, http.MethodPost, "/api/player/start", nil)

	for {
		var msg streamMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("waiting for playing snapshot: %v", err)
		}
		if msg.Type == events.EventPlaybackState && msg.State != nil && msg.State.Playing {
			return
		}
	}
}

func TestHistoryListsStartedTracks(t *testing.T) {
	env := newTestEnv(t)
	env.state(t, http.MethodPut, "/api/theme", map[string]string{"theme": "forest"})
	env.state(t, http.MethodPost, "/api/player/start", nil)
	env.state(t, http.MethodPut, "/api/player/song", map[string]int{"index": 2})

	var page struct {
		Entries []history.Entry `json:"entries"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		status, body := env.do(t, http.MethodGet, "/api/player/history?theme=forest", nil)
		if status != http.StatusOK {
			t.Fatalf("history: %d %s", status, body)
		}
		if err := json.Unmarshal(body, &page); err != nil {
			t.Fatalf("decode history: %v", err)
		}
		if len(page.Entries) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected two entries, got %s", body)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if page.Entries[0].Index != 2 || page.Entries[0].Reason != "manual" || page.Entries[1].Reason != "start" {
		t.Fatalf("unexpected history order: %+v", page.Entries)
	}
}
