/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3Config describes the bucket holding theme folders.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3API is the part of the S3 client the source uses.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// S3 serves themes stored as <prefix>/<theme>/<file> objects.
type S3 struct {
	api    S3API
	bucket string
	prefix string
	keep   Filter
	logger zerolog.Logger
}

// NewS3 creates an S3-backed source.
func NewS3(api S3API, bucket, prefix string, keep Filter, logger zerolog.Logger) *S3 {
	return &S3{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		keep:   keep,
		logger: logger.With().Str("component", "source").Str("source", "s3").Str("bucket", bucket).Logger(),
	}
}

func (s *S3) key(parts ...string) string {
	if s.prefix != "" {
		parts = append([]string{s.prefix}, parts...)
	}
	return path.Join(parts...)
}

// ListTracks lists the objects directly under the theme folder.
func (s *S3) ListTracks(ctx context.Context, theme string) ([]string, error) {
	if err := checkName("theme", theme); err != nil {
		return nil, err
	}
	folder := s.key(theme) + "/"
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(folder),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", folder, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), folder)
			if strings.Contains(name, "/") {
				continue
			}
			names = append(names, name)
		}
	}
	files := filterNames(names, s.keep)

	s.logger.Debug().Str("theme", theme).Int("tracks", len(files)).Msg("s3 source: theme listed")
	return files, nil
}

// Fetch streams one object. The caller closes the body.
func (s *S3) Fetch(ctx context.Context, theme, filename string) (io.ReadCloser, error) {
	if err := checkName("theme", theme); err != nil {
		return nil, err
	}
	if err := checkName("file", filename); err != nil {
		return nil, err
	}
	key := s.key(theme, filename)
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out.Body, nil
}

// Themes returns the folders directly under the prefix.
func (s *S3) Themes(ctx context.Context) ([]string, error) {
	root := ""
	if s.prefix != "" {
		root = s.prefix + "/"
	}
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(root),
		Delimiter: aws.String("/"),
	})

	var themes []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list themes: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), root), "/")
			if name != "" {
				themes = append(themes, name)
			}
		}
	}
	sort.Strings(themes)
	return themes, nil
}
