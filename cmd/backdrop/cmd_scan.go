/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/backdrop/internal/audio/beepgraph"
	"github.com/friendsincode/backdrop/internal/source"
)

var (
	scanRoot    string
	scanOutput  string
	scanWorkers int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a media root and write a theme manifest",
	Long: `scan walks every theme directory below the media root and writes a YAML
manifest listing its playable tracks. Point BACKDROP_MANIFEST at the result
and set BACKDROP_TRACK_SOURCE=manifest to pin the listing order.

Examples:
  backdrop scan --root ./music -o themes.yaml
  backdrop scan --root /srv/music  # output to stdout`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRoot, "root", "", "Media root to scan (default: BACKDROP_MEDIA_ROOT)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Output file (default: stdout)")
	scanCmd.Flags().IntVarP(&scanWorkers, "workers", "w", 4, "Parallel theme listings")
	rootCmd.AddCommand(scanCmd)
}

// scanManifest lists every theme below root in parallel. Themes without a
// playable track are left out.
func scanManifest(ctx context.Context, root string, keep source.Filter, workers int, logger zerolog.Logger) (*source.Manifest, error) {
	fs := source.NewFilesystem(root, keep, logger)
	if err := fs.CheckAccess(ctx); err != nil {
		return nil, err
	}
	themes, err := fs.Themes(ctx)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	m := &source.Manifest{Themes: make(map[string]source.ManifestTheme, len(themes))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, theme := range themes {
		g.Go(func() error {
			files, err := fs.ListTracks(gctx, theme)
			if err != nil {
				return fmt.Errorf("scan %s: %w", theme, err)
			}
			if len(files) == 0 {
				logger.Debug().Str("theme", theme).Msg("no playable tracks, skipping")
				return nil
			}
			mu.Lock()
			m.Themes[theme] = source.ManifestTheme{Tracks: files}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	root := scanRoot
	if root == "" {
		root = cfg.MediaRoot
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m, err := scanManifest(ctx, root, beepgraph.Supported, scanWorkers, logger)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	total := 0
	for _, t := range m.Themes {
		total += len(t.Tracks)
	}
	fmt.Fprintf(os.Stderr, "Scan complete: %d themes, %d tracks\n", len(m.Themes), total)

	out := cmd.OutOrStdout()
	if scanOutput != "" {
		f, err := os.Create(scanOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if scanOutput != "" {
		fmt.Fprintf(os.Stderr, "Manifest written to %s\n", scanOutput)
	}
	return nil
}
