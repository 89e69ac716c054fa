/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/backdrop/internal/audio/virtual"
	"github.com/friendsincode/backdrop/internal/catalog"
	"github.com/friendsincode/backdrop/internal/engine"
	"github.com/friendsincode/backdrop/internal/events"
)

var (
	simTheme       string
	simDuration    time.Duration
	simTrackLength time.Duration
	simSynthetic   int
	simSeed        uint64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a theme on a virtual clock and print every transition",
	Long: `Run the engine against a silent virtual audio graph. Time advances from one
scheduled crossfade to the next, so hours of playback finish instantly.

Track names come from the configured source unless --synthetic is set. No
audio is decoded; every track lasts --track-length.

Examples:
  backdrop simulate --theme forest --duration 2h
  backdrop simulate --synthetic 5 --track-length 30s --seed 7`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVarP(&simTheme, "theme", "t", "", "Theme to simulate (default: BACKDROP_THEME)")
	simulateCmd.Flags().DurationVar(&simDuration, "duration", time.Hour, "Simulated playback time")
	simulateCmd.Flags().DurationVar(&simTrackLength, "track-length", 3*time.Minute, "Length assumed for every track")
	simulateCmd.Flags().IntVar(&simSynthetic, "synthetic", 0, "Generate this many tracks instead of listing the source")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "Shuffle seed (0: random)")
	rootCmd.AddCommand(simulateCmd)
}

// syntheticLibrary serves n empty tracks for any theme.
type syntheticLibrary int

func (n syntheticLibrary) ListTracks(_ context.Context, _ string) ([]string, error) {
	names := make([]string, int(n))
	for i := range names {
		names[i] = fmt.Sprintf("track-%02d.mp3", i+1)
	}
	return names, nil
}

func (n syntheticLibrary) Fetch(_ context.Context, _, _ string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

// simulation drives one engine on a virtual graph.
type simulation struct {
	Theme    string
	Duration time.Duration
	Options  engine.Options
	Catalog  catalog.Config
	Logger   zerolog.Logger
}

// run plays the theme for Duration of virtual time, writing one line per
// event to out. It returns the number of tracks started.
func (s simulation) run(ctx context.Context, out io.Writer) (int, error) {
	g := virtual.New()
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	unavailable := bus.Subscribe(events.EventTrackUnavailable)
	defer bus.Unsubscribe(events.EventNowPlaying, nowPlaying)
	defer bus.Unsubscribe(events.EventTrackUnavailable, unavailable)

	opts := s.Options
	// Background loads would race the virtual clock.
	opts.Prefetch = false
	host := engine.NewHost(opts, s.Catalog, g, g, bus, s.Logger)
	defer host.Close()

	if err := host.SwitchTheme(ctx, s.Theme); err != nil {
		return 0, err
	}
	if err := host.Engine().Start(ctx); err != nil {
		return 0, fmt.Errorf("start playback: %w", err)
	}

	started := 0
	drain := func() {
		for {
			select {
			case p := <-nowPlaying:
				started++
				fmt.Fprintf(out, "[%s] #%v %v (%v, fade %vms, rail %v)\n",
					formatElapsed(g.CurrentTime()), p["index"], p["name"], p["reason"], p["fade_ms"], p["rail"])
			case p := <-unavailable:
				fmt.Fprintf(out, "[%s] skipped %v: %v\n", formatElapsed(g.CurrentTime()), p["file"], p["error"])
			default:
				return
			}
		}
	}

	for {
		drain()
		if err := ctx.Err(); err != nil {
			return started, err
		}
		remaining := s.Duration - g.CurrentTime()
		if remaining <= 0 {
			break
		}
		next, ok := g.NextDue()
		if !ok {
			fmt.Fprintf(out, "[%s] nothing scheduled, stopping\n", formatElapsed(g.CurrentTime()))
			break
		}
		if next > remaining {
			g.Advance(remaining)
			break
		}
		g.Advance(next)
	}
	drain()
	return started, host.Engine().Stop()
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Millisecond)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	ms := (d % time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if simTheme != "" {
		cfg.DefaultTheme = simTheme
	}
	if simDuration <= 0 || simTrackLength <= 0 {
		return fmt.Errorf("duration and track length must be positive")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cc := catalog.Config{
		Decoder:     virtual.Decoder{Length: simTrackLength},
		LoadTimeout: cfg.LoadTimeout,
	}
	if simSynthetic > 0 {
		lib := syntheticLibrary(simSynthetic)
		cc.Lister, cc.Fetcher = lib, lib
	} else {
		src, err := openSource(ctx, nil)
		if err != nil {
			return err
		}
		cc.Lister, cc.Fetcher = src, src
	}

	opts := engineOptions()
	if simSeed != 0 {
		rng := rand.New(rand.NewPCG(simSeed, simSeed))
		opts.IntN = rng.IntN
	}

	sim := simulation{
		Theme:    cfg.DefaultTheme,
		Duration: simDuration,
		Options:  opts,
		Catalog:  cc,
		Logger:   logger,
	}
	started, err := sim.run(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d tracks in %s\n", started, simDuration)
	return nil
}
