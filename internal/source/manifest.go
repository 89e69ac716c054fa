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
	"sort"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Manifest is the YAML file mapping themes to explicit track lists:
//
//	themes:
//	  forest:
//	    folder: woodland   # optional, defaults to the theme name
//	    tracks: [birds.mp3, creek.ogg]
type Manifest struct {
	Themes map[string]ManifestTheme `yaml:"themes"`
}

// ManifestTheme lists one theme's tracks in play-listing order.
type ManifestTheme struct {
	Folder string   `yaml:"folder,omitempty"`
	Tracks []string `yaml:"tracks"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Themes) == 0 {
		return nil, fmt.Errorf("manifest declares no themes")
	}
	for theme, entry := range m.Themes {
		if err := checkName("theme", theme); err != nil {
			return nil, err
		}
		if entry.Folder != "" {
			if err := checkName("folder", entry.Folder); err != nil {
				return nil, err
			}
		}
		for _, track := range entry.Tracks {
			if err := checkName("file", track); err != nil {
				return nil, fmt.Errorf("theme %s: %w", theme, err)
			}
		}
	}
	return &m, nil
}

// ManifestSource lists tracks from a manifest and fetches them from a backend.
type ManifestSource struct {
	manifest *Manifest
	backend  Source
	logger   zerolog.Logger
}

// NewManifestSource wraps backend with the manifest's listings.
func NewManifestSource(m *Manifest, backend Source, logger zerolog.Logger) *ManifestSource {
	return &ManifestSource{
		manifest: m,
		backend:  backend,
		logger:   logger.With().Str("component", "source").Str("source", "manifest").Logger(),
	}
}

// ListTracks returns the theme's tracks exactly as listed.
func (s *ManifestSource) ListTracks(ctx context.Context, theme string) ([]string, error) {
	entry, ok := s.manifest.Themes[theme]
	if !ok {
		return nil, fmt.Errorf("theme %s: %w", theme, ErrNotFound)
	}
	files := make([]string, len(entry.Tracks))
	copy(files, entry.Tracks)
	return files, nil
}

// Fetch opens the track from the backend folder of the theme.
func (s *ManifestSource) Fetch(ctx context.Context, theme, filename string) (io.ReadCloser, error) {
	entry, ok := s.manifest.Themes[theme]
	if !ok {
		return nil, fmt.Errorf("theme %s: %w", theme, ErrNotFound)
	}
	folder := entry.Folder
	if folder == "" {
		folder = theme
	}
	return s.backend.Fetch(ctx, folder, filename)
}

// Themes returns the manifest's themes in name order.
func (s *ManifestSource) Themes(ctx context.Context) ([]string, error) {
	themes := make([]string, 0, len(s.manifest.Themes))
	for theme := range s.manifest.Themes {
		themes = append(themes, theme)
	}
	sort.Strings(themes)
	return themes, nil
}
