/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

const sampleManifest = `
themes:
  forest:
    folder: woodland
    tracks: [creek.wav, birds.mp3]
  night:
    tracks:
      - crickets.mp3
`

func TestManifestSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "woodland", "birds.mp3"), "tweet")
	writeFile(t, filepath.Join(root, "night", "crickets.mp3"), "chirp")

	path := filepath.Join(t.TempDir(), "themes.yaml")
	writeFile(t, path, sampleManifest)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	src := NewManifestSource(m, NewFilesystem(root, nil, zerolog.Nop()), zerolog.Nop())

	files, err := src.ListTracks(context.Background(), "forest")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(files, []string{"creek.wav", "birds.mp3"}) {
		t.Fatalf("manifest order not kept: %v", files)
	}

	rc, err := src.Fetch(context.Background(), "forest", "birds.mp3")
	if err != nil {
		t.Fatalf("fetch from folder: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "tweet" {
		t.Fatalf("unexpected body %q", data)
	}

	if _, err := src.ListTracks(context.Background(), "desert"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	themes, _ := Themes(context.Background(), src)
	if !reflect.DeepEqual(themes, []string{"forest", "night"}) {
		t.Fatalf("unexpected themes %v", themes)
	}
}

func TestParseManifestRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "themes: {}\n"},
		{"bad yaml", "themes: [\n"},
		{"traversal track", "themes:\n  a:\n    tracks: [../x.mp3]\n"},
		{"traversal folder", "themes:\n  a:\n    folder: ../etc\n    tracks: [x.mp3]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tt.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
