/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package source provides the places theme listings and track bytes come
// from: a local media root, an HTTP music service, an S3 bucket or a YAML
// manifest over one of those.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/friendsincode/backdrop/internal/catalog"
)

var (
	// ErrNotFound is returned when a theme or track does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned for themes or filenames that would escape
	// their directory.
	ErrInvalidName = errors.New("invalid name")
)

// Source lists a theme's tracks and opens them.
type Source interface {
	catalog.Lister
	catalog.Fetcher
}

// ThemeLister is implemented by sources that can enumerate their themes.
type ThemeLister interface {
	Themes(ctx context.Context) ([]string, error)
}

// Filter decides whether a listed filename is playable.
type Filter func(filename string) bool

// KeepAll accepts every filename.
func KeepAll(string) bool { return true }

// Themes enumerates the themes of src, or reports that it cannot.
func Themes(ctx context.Context, src Source) ([]string, error) {
	tl, ok := src.(ThemeLister)
	if !ok {
		return nil, fmt.Errorf("source %T cannot enumerate themes", src)
	}
	return tl.Themes(ctx)
}

// checkName rejects empty names and names containing path separators or
// parent references.
func checkName(kind, name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, name)
	}
	return nil
}

func filterNames(names []string, keep Filter) []string {
	if keep == nil {
		keep = KeepAll
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || strings.HasPrefix(name, ".") {
			continue
		}
		if keep(name) {
			out = append(out, name)
		}
	}
	return out
}
