/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/backdrop/internal/audio/beepgraph"
	"github.com/friendsincode/backdrop/internal/cache"
	"github.com/friendsincode/backdrop/internal/catalog"
	"github.com/friendsincode/backdrop/internal/clock"
	"github.com/friendsincode/backdrop/internal/config"
	"github.com/friendsincode/backdrop/internal/engine"
	"github.com/friendsincode/backdrop/internal/eventbus"
	"github.com/friendsincode/backdrop/internal/events"
	"github.com/friendsincode/backdrop/internal/history"
	"github.com/friendsincode/backdrop/internal/logging"
	"github.com/friendsincode/backdrop/internal/server"
	"github.com/friendsincode/backdrop/internal/source"
	"github.com/friendsincode/backdrop/internal/telemetry"
	"github.com/friendsincode/backdrop/internal/version"
)

var (
	logger    zerolog.Logger
	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "backdrop",
	Short: "Backdrop - themed background music",
	Long:  "Backdrop plays a shuffled, endlessly crossfading soundtrack for a chosen theme and exposes playback controls over HTTP.",
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control API and play on the speaker",
	Long:  "Start the HTTP control API, open the audio output and load the default theme.",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err = logging.SetupWithOptions(cfg.Environment, os.Stderr, logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if cfg.File != "" {
		logger.Debug().Str("file", cfg.File).Msg("configuration file applied")
	}
	return nil
}

// engineOptions maps configuration onto engine settings.
func engineOptions() engine.Options {
	opts := engine.DefaultOptions(cfg.DefaultTheme)
	opts.Crossfade = cfg.Crossfade
	opts.MasterRamp = cfg.MasterRamp
	opts.Volume = cfg.InitialVolume
	opts.Prefetch = cfg.Prefetch
	opts.RetryDelay = cfg.RetryDelay
	return opts
}

// openListingCache connects the Redis listing cache when enabled.
func openListingCache() (*cache.Cache, error) {
	if !cfg.CacheEnabled {
		return nil, nil
	}
	cc := cache.DefaultConfig()
	cc.RedisAddr = cfg.RedisAddr
	cc.RedisPassword = cfg.RedisPassword
	cc.RedisDB = cfg.RedisDB
	cc.ListingTTL = cfg.ListingTTL
	return cache.New(cc, logger)
}

// openSource opens the configured track source with only decodable files.
func openSource(ctx context.Context, listings *cache.Cache) (source.Source, error) {
	var lc source.ListingCache
	if listings != nil {
		lc = listings
	}
	src, err := source.Open(ctx, cfg, beepgraph.Supported, lc, logger)
	if err != nil {
		return nil, fmt.Errorf("open track source: %w", err)
	}
	return src, nil
}

// openBus returns the local bus and the publisher engines should use. The
// publisher also fans events out over NATS when a URL is configured.
func openBus() (*events.Bus, events.Publisher, func()) {
	local := events.NewBus()
	if cfg.NATSURL == "" {
		return local, local, func() {}
	}
	nc := eventbus.DefaultNATSConfig()
	nc.URL = cfg.NATSURL
	nb := eventbus.NewNATSBus(nc, local, logger)
	return local, nb, func() {
		if err := nb.Close(); err != nil {
			logger.Warn().Err(err).Msg("close NATS bus")
		}
	}
}

// openSpeaker opens the platform audio output.
func openSpeaker() (*beepgraph.Graph, beep.SampleRate, error) {
	sr := beep.SampleRate(cfg.SampleRate)
	g, err := beepgraph.Open(sr, cfg.SpeakerBuffer, cfg.TapSize, logger)
	if err != nil {
		return nil, 0, fmt.Errorf("open audio output: %w", err)
	}
	return g, sr, nil
}

// watchLibrary starts the filesystem watcher when enabled for an fs source.
func watchLibrary(ctx context.Context, src source.Source, bus events.Publisher) {
	if !cfg.WatchLibrary || cfg.TrackSource != config.SourceFilesystem {
		return
	}
	var inv source.Invalidator
	if cached, ok := src.(*source.Cached); ok {
		inv = cached
	}
	w, err := source.NewWatcher(cfg.MediaRoot, inv, bus, source.DefaultDebounce, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("library watcher unavailable")
		return
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("library watcher stopped")
		}
	}()
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("backdrop starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry tracing
	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    telemetry.ServiceName,
		ServiceVersion: version.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	listings, err := openListingCache()
	if err != nil {
		return fmt.Errorf("initialize listing cache: %w", err)
	}
	if listings != nil {
		defer listings.Close()
	}

	src, err := openSource(ctx, listings)
	if err != nil {
		return err
	}

	local, bus, closeBus := openBus()
	defer closeBus()

	graph, sr, err := openSpeaker()
	if err != nil {
		return err
	}

	host := engine.NewHost(engineOptions(), catalog.Config{
		Lister:      src,
		Fetcher:     src,
		Decoder:     beepgraph.NewDecoder(sr),
		LoadTimeout: cfg.LoadTimeout,
	}, graph, clock.Real{}, bus, logger)
	defer func() {
		if err := host.Close(); err != nil {
			logger.Error().Err(err).Msg("close audio output")
		}
	}()

	if err := host.SwitchTheme(ctx, cfg.DefaultTheme); err != nil {
		// The API stays up so a listener can pick another theme.
		logger.Warn().Err(err).Str("theme", cfg.DefaultTheme).Msg("default theme unavailable")
	}

	watchLibrary(ctx, src, bus)

	metricsServer := &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsBind).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	var themes server.ThemeLister
	if tl, ok := src.(source.ThemeLister); ok {
		themes = tl
	}
	played := history.New(history.DefaultCapacity)
	played.Attach(ctx, local)

	srv := server.New(server.Config{Addr: cfg.HTTPAddr()}, host, local, themes, played, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")
	cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := metricsServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown failed")
	}

	logger.Info().Msg("backdrop stopped")
	return nil
}
