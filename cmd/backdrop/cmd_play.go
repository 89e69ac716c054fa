/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/backdrop/internal/audio/beepgraph"
	"github.com/friendsincode/backdrop/internal/catalog"
	"github.com/friendsincode/backdrop/internal/clock"
	"github.com/friendsincode/backdrop/internal/engine"
	"github.com/friendsincode/backdrop/internal/events"
)

var (
	playTheme  string
	playVolume float64
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a theme on the speaker until interrupted",
	Long: `Play a theme headless on the default audio output. Tracks are shuffled and
crossfaded endlessly until SIGINT or SIGTERM.

Examples:
  backdrop play --theme forest
  BACKDROP_CROSSFADE=5s backdrop play --theme ocean --volume 0.3`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVarP(&playTheme, "theme", "t", "", "Theme to play (default: BACKDROP_THEME)")
	playCmd.Flags().Float64Var(&playVolume, "volume", -1, "Master volume 0..1 (default: BACKDROP_VOLUME)")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if playTheme != "" {
		cfg.DefaultTheme = playTheme
	}
	if playVolume >= 0 {
		if playVolume > 1 {
			return fmt.Errorf("volume %.2f out of range [0, 1]", playVolume)
		}
		cfg.InitialVolume = playVolume
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := openSource(ctx, nil)
	if err != nil {
		return err
	}
	graph, sr, err := openSpeaker()
	if err != nil {
		return err
	}

	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	defer bus.Unsubscribe(events.EventNowPlaying, nowPlaying)

	host := engine.NewHost(engineOptions(), catalog.Config{
		Lister:      src,
		Fetcher:     src,
		Decoder:     beepgraph.NewDecoder(sr),
		LoadTimeout: cfg.LoadTimeout,
	}, graph, clock.Real{}, bus, logger)
	defer host.Close()

	if err := host.SwitchTheme(ctx, cfg.DefaultTheme); err != nil {
		return err
	}
	if err := host.Engine().Start(ctx); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "stopping")
			return host.Engine().Stop()
		case p := <-nowPlaying:
			fmt.Fprintf(out, "now playing: %v\n", p["name"])
		}
	}
}
