/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/config"
)

// Open builds the source selected by cfg. When listings is non-nil the
// result caches theme listings in it.
func Open(ctx context.Context, cfg *config.Config, keep Filter, listings ListingCache, logger zerolog.Logger) (Source, error) {
	kind := cfg.TrackSource
	if kind == config.SourceManifest {
		kind = cfg.ManifestBackend
	}
	backend, scope, err := openBackend(ctx, kind, cfg, keep, logger)
	if err != nil {
		return nil, err
	}

	var src Source = backend
	if cfg.TrackSource == config.SourceManifest {
		m, err := LoadManifest(cfg.ManifestPath)
		if err != nil {
			return nil, err
		}
		src = NewManifestSource(m, backend, logger)
		// Manifest listings are already local.
		return src, nil
	}

	if listings != nil {
		src = NewCached(src, listings, scope, logger)
	}
	return src, nil
}

func openBackend(ctx context.Context, kind config.TrackSource, cfg *config.Config, keep Filter, logger zerolog.Logger) (Source, string, error) {
	switch kind {
	case config.SourceFilesystem:
		fs := NewFilesystem(cfg.MediaRoot, keep, logger)
		if err := fs.CheckAccess(ctx); err != nil {
			return nil, "", err
		}
		return fs, "fs:" + cfg.MediaRoot, nil
	case config.SourceHTTP:
		return NewHTTP(cfg.ListingBaseURL, nil, keep, logger), "http:" + cfg.ListingBaseURL, nil
	case config.SourceS3:
		client, err := NewS3Client(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, "", err
		}
		return NewS3(client, cfg.S3Bucket, cfg.S3Prefix, keep, logger), "s3:" + cfg.S3Bucket + "/" + cfg.S3Prefix, nil
	default:
		return nil, "", fmt.Errorf("unsupported track source %q", kind)
	}
}
