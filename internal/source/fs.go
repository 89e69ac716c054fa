/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// Filesystem serves themes laid out as <root>/<theme>/<file>.
type Filesystem struct {
	rootDir string
	keep    Filter
	logger  zerolog.Logger
}

// NewFilesystem creates a filesystem-backed source.
func NewFilesystem(rootDir string, keep Filter, logger zerolog.Logger) *Filesystem {
	return &Filesystem{
		rootDir: rootDir,
		keep:    keep,
		logger:  logger.With().Str("component", "source").Str("source", "fs").Logger(),
	}
}

// Root returns the media root directory.
func (fs *Filesystem) Root() string {
	return fs.rootDir
}

// ListTracks returns the playable files of a theme directory in name order.
func (fs *Filesystem) ListTracks(ctx context.Context, theme string) ([]string, error) {
	if err := checkName("theme", theme); err != nil {
		return nil, err
	}
	dir := filepath.Join(fs.rootDir, theme)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("theme %s: %w", theme, ErrNotFound)
		}
		return nil, fmt.Errorf("read theme directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	files := filterNames(names, fs.keep)

	fs.logger.Debug().
		Str("theme", theme).
		Int("entries", len(entries)).
		Int("tracks", len(files)).
		Msg("filesystem source: theme listed")
	return files, nil
}

// Fetch opens one track file.
func (fs *Filesystem) Fetch(ctx context.Context, theme, filename string) (io.ReadCloser, error) {
	if err := checkName("theme", theme); err != nil {
		return nil, err
	}
	if err := checkName("file", filename); err != nil {
		return nil, err
	}
	fullPath := filepath.Join(fs.rootDir, theme, filename)
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", theme, filename, ErrNotFound)
		}
		return nil, fmt.Errorf("open track: %w", err)
	}
	return f, nil
}

// Themes returns the theme directories under the root.
func (fs *Filesystem) Themes(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(fs.rootDir)
	if err != nil {
		return nil, fmt.Errorf("read media root: %w", err)
	}
	var themes []string
	for _, e := range entries {
		if e.IsDir() && e.Name()[0] != '.' {
			themes = append(themes, e.Name())
		}
	}
	sort.Strings(themes)
	return themes, nil
}

// CheckAccess verifies the media root exists and is a directory.
func (fs *Filesystem) CheckAccess(ctx context.Context) error {
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("media root directory does not exist: %s", fs.rootDir)
		}
		return fmt.Errorf("cannot access media root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", fs.rootDir)
	}
	return nil
}
