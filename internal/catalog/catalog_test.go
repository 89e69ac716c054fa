/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/audio"
	"github.com/friendsincode/backdrop/internal/audio/virtual"
	"github.com/friendsincode/backdrop/internal/events"
)

type stubLister struct {
	names []string
	err   error
}

func (l stubLister) ListTracks(context.Context, string) ([]string, error) {
	return l.names, l.err
}

type stubFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	// gate, when set, blocks every fetch until closed.
	gate    chan struct{}
	started chan string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *stubFetcher) Fetch(_ context.Context, _, filename string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls[filename]++
	err := f.fail[filename]
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- filename
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader([]byte(filename))), nil
}

func (f *stubFetcher) count(filename string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[filename]
}

type stubDecoder struct{}

func (stubDecoder) Decode(filename string, r io.ReadCloser) (audio.Buffer, error) {
	defer r.Close()
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return &virtual.Buffer{Name: filename, Length: 30 * time.Second}, nil
}

func newTestCatalog(l Lister, f Fetcher, bus events.Publisher) *Catalog {
	return New(Config{Lister: l, Fetcher: f, Decoder: stubDecoder{}, Events: bus}, zerolog.Nop())
}

func TestInitializeLoadsFirstTrackOnly(t *testing.T) {
	f := newStubFetcher()
	bus := events.NewBus()
	ready := bus.Subscribe(events.EventCatalogReady)
	c := newTestCatalog(stubLister{names: []string{"a.mp3", "b.mp3", "c.mp3"}}, f, bus)

	n, first, err := c.Initialize(context.Background(), "forest", nil)
	if err != nil || n != 3 || first != 0 {
		t.Fatalf("Initialize = %d, %d, %v", n, first, err)
	}
	if c.Len() != 3 || !c.Ready() || c.Theme() != "forest" {
		t.Fatalf("unexpected state len=%d ready=%v theme=%q", c.Len(), c.Ready(), c.Theme())
	}
	if !c.Loaded(0) || c.Loaded(1) || c.Loaded(2) {
		t.Errorf("only index 0 should be loaded: %+v", c.Tracks())
	}
	if f.count("b.mp3") != 0 {
		t.Error("index 1 fetched eagerly")
	}

	select {
	case p := <-ready:
		files, _ := p["files"].([]string)
		if len(files) != 3 || files[0] != "a.mp3" {
			t.Errorf("ready payload files = %v", p["files"])
		}
	default:
		t.Fatal("catalog.ready not published")
	}
}

func TestInitializeFollowsOpeningOrder(t *testing.T) {
	reversed := func(n int) []int {
		order := make([]int, n)
		for i := range order {
			order[i] = n - 1 - i
		}
		return order
	}
	tests := []struct {
		name    string
		broken  []string
		opening func(int) []int
		first   int
		wantErr error
	}{
		{"preferred opener", nil, reversed, 2, nil},
		{"skips broken opener", []string{"c.mp3"}, reversed, 1, nil},
		{"listing order", []string{"a.mp3"}, nil, 1, nil},
		{"nothing loads", []string{"a.mp3", "b.mp3", "c.mp3"}, reversed, -1, ErrTrackUnavailable},
		{"no candidates", nil, func(int) []int { return nil }, -1, ErrTrackUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStubFetcher()
			for _, name := range tt.broken {
				f.fail[name] = errors.New("404")
			}
			c := newTestCatalog(stubLister{names: []string{"a.mp3", "b.mp3", "c.mp3"}}, f, nil)

			n, first, err := c.Initialize(context.Background(), "forest", tt.opening)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || c.Ready() {
					t.Fatalf("Initialize = %v ready=%v, want %v", err, c.Ready(), tt.wantErr)
				}
				return
			}
			if err != nil || n != 3 || first != tt.first {
				t.Fatalf("Initialize = %d, %d, %v; want first %d", n, first, err, tt.first)
			}
			if !c.Ready() || !c.Loaded(first) {
				t.Errorf("opener %d not loaded", first)
			}
		})
	}
}

func TestInitializeNoTracks(t *testing.T) {
	tests := []struct {
		name   string
		lister stubLister
	}{
		{"empty listing", stubLister{}},
		{"listing error", stubLister{err: errors.New("503")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCatalog(tt.lister, newStubFetcher(), nil)
			_, _, err := c.Initialize(context.Background(), "void", nil)
			if !errors.Is(err, ErrNoTracks) {
				t.Fatalf("err = %v, want ErrNoTracks", err)
			}
			if c.Ready() || c.Len() != 0 {
				t.Error("catalog should stay uninitialized")
			}
		})
	}
}

func TestEnsureLoadedNeverRefetches(t *testing.T) {
	f := newStubFetcher()
	c := newTestCatalog(stubLister{names: []string{"a.mp3", "b.mp3"}}, f, nil)
	if _, err := c.Discover(context.Background(), "t"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		buf, err := c.EnsureLoaded(context.Background(), 1)
		if err != nil || buf == nil {
			t.Fatalf("EnsureLoaded: %v %v", buf, err)
		}
	}
	if n := f.count("b.mp3"); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestEnsureLoadedSharesInFlightLoad(t *testing.T) {
	f := newStubFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 8)
	c := newTestCatalog(stubLister{names: []string{"a.mp3"}}, f, nil)
	if _, err := c.Discover(context.Background(), "t"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if buf, err := c.EnsureLoaded(context.Background(), 0); err == nil && buf != nil {
				ok.Add(1)
			}
		}()
	}
	<-f.started
	close(f.gate)
	wg.Wait()

	if ok.Load() != 5 {
		t.Errorf("%d callers got the buffer, want 5", ok.Load())
	}
	if n := f.count("a.mp3"); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestEnsureLoadedFailure(t *testing.T) {
	f := newStubFetcher()
	f.fail["b.mp3"] = errors.New("404")
	bus := events.NewBus()
	unavailable := bus.Subscribe(events.EventTrackUnavailable)
	c := newTestCatalog(stubLister{names: []string{"a.mp3", "b.mp3"}}, f, bus)
	if _, err := c.Discover(context.Background(), "t"); err != nil {
		t.Fatal(err)
	}

	buf, err := c.EnsureLoaded(context.Background(), 1)
	if !errors.Is(err, ErrTrackUnavailable) || buf != nil {
		t.Fatalf("EnsureLoaded = %v, %v; want ErrTrackUnavailable", buf, err)
	}
	if c.Loaded(1) {
		t.Error("failed track should stay unloaded")
	}
	if info, _ := c.Track(1); info.Loading {
		t.Error("failed track should not stay loading")
	}
	select {
	case p := <-unavailable:
		if p["index"] != 1 {
			t.Errorf("payload index = %v", p["index"])
		}
	default:
		t.Error("track.unavailable not published")
	}

	if _, err := c.EnsureLoaded(context.Background(), 7); !errors.Is(err, ErrTrackUnavailable) {
		t.Errorf("out of range err = %v", err)
	}
}

func TestLoadAfterResetIsDiscarded(t *testing.T) {
	f := newStubFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)
	c := newTestCatalog(stubLister{names: []string{"a.mp3", "b.mp3"}}, f, nil)
	if _, err := c.Discover(context.Background(), "t"); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := c.EnsureLoaded(context.Background(), 1)
		errc <- err
	}()
	<-f.started

	// Re-discover while the load is blocked.
	if _, err := c.Discover(context.Background(), "t"); err != nil {
		t.Fatal(err)
	}
	close(f.gate)

	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	if c.Loaded(1) {
		t.Error("stale load must not populate the new catalog")
	}
}

func TestWaiterCancelDoesNotAbortLoad(t *testing.T) {
	f := newStubFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)
	c := newTestCatalog(stubLister{names: []string{"a.mp3"}}, f, nil)
	if _, err := c.Discover(context.Background(), "t"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.EnsureLoaded(ctx, 0)
		errc <- err
	}()
	<-f.started
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	close(f.gate)
	if _, err := c.EnsureLoaded(context.Background(), 0); err != nil {
		t.Fatalf("second EnsureLoaded: %v", err)
	}
	if n := f.count("a.mp3"); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"rainy_day-lofi.mp3", "Rainy Day Lofi"},
		{"ocean waves.ogg", "Ocean Waves"},
		{"forest/birds.wav", "Birds"},
		{"noext", "Noext"},
		{".mp3", "Mp3"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.in); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
