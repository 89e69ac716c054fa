/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/backdrop/internal/cache"
	"github.com/friendsincode/backdrop/internal/catalog"
	"github.com/friendsincode/backdrop/internal/source"
)

var themesCmd = &cobra.Command{
	Use:   "themes [theme]",
	Short: "List themes, or the tracks of one theme",
	Long: `List the themes offered by the configured track source. With a theme
argument, list its playable tracks in listing order. --refresh drops cached
listings first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runThemes,
}

var refreshListings bool

func init() {
	themesCmd.Flags().BoolVar(&refreshListings, "refresh", false, "flush cached listings before listing")
	rootCmd.AddCommand(themesCmd)
}

func runThemes(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	listings, err := openListingCache()
	if err != nil {
		return fmt.Errorf("initialize listing cache: %w", err)
	}
	if listings != nil {
		defer listings.Close()
	}
	if refreshListings {
		if err := refreshListingCache(ctx, listings, logger); err != nil {
			return err
		}
	}
	src, err := openSource(ctx, listings)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return printTracks(ctx, cmd.OutOrStdout(), src, args[0])
	}
	return printThemes(ctx, cmd.OutOrStdout(), src)
}

// refreshListingCache drops every cached listing so the source is read again.
func refreshListingCache(ctx context.Context, listings *cache.Cache, logger zerolog.Logger) error {
	if listings == nil {
		logger.Debug().Msg("listing cache disabled, nothing to refresh")
		return nil
	}
	if err := listings.FlushAll(ctx); err != nil {
		return fmt.Errorf("flush listing cache: %w", err)
	}
	return nil
}

func printThemes(ctx context.Context, out io.Writer, src source.Source) error {
	themes, err := source.Themes(ctx, src)
	if err != nil {
		return err
	}
	if len(themes) == 0 {
		fmt.Fprintln(out, "no themes found")
		return nil
	}
	for _, theme := range themes {
		fmt.Fprintln(out, theme)
	}
	return nil
}

func printTracks(ctx context.Context, out io.Writer, src source.Source, theme string) error {
	files, err := src.ListTracks(ctx, theme)
	if err != nil {
		return fmt.Errorf("list %s: %w", theme, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: %s", catalog.ErrNoTracks, theme)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tFILE")
	for i, f := range files {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i, catalog.DisplayName(f), f)
	}
	return tw.Flush()
}
