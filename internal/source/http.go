/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxListingBytes bounds a listing response body.
const maxListingBytes = 1 << 20

// HTTP talks to a music service exposing
//
//	GET {base}/api/music/{theme}        -> ["a.mp3", ...] or {"files": [...]}
//	GET {base}/music/{theme}/{filename} -> audio bytes
type HTTP struct {
	baseURL string
	client  *http.Client
	keep    Filter
	logger  zerolog.Logger
}

// NewHTTP creates an HTTP source. A nil client gets a traced default.
func NewHTTP(baseURL string, client *http.Client, keep Filter, logger zerolog.Logger) *HTTP {
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   2 * time.Minute,
		}
	}
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		keep:    keep,
		logger:  logger.With().Str("component", "source").Str("source", "http").Logger(),
	}
}

// ListTracks fetches the theme listing.
func (h *HTTP) ListTracks(ctx context.Context, theme string) ([]string, error) {
	if err := checkName("theme", theme); err != nil {
		return nil, err
	}
	resp, err := h.get(ctx, h.baseURL+"/api/music/"+url.PathEscape(theme))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", theme, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	names, err := decodeListing(body)
	if err != nil {
		return nil, fmt.Errorf("decode listing for %s: %w", theme, err)
	}

	files := filterNames(names, h.keep)
	h.logger.Debug().Str("theme", theme).Int("tracks", len(files)).Msg("http source: theme listed")
	return files, nil
}

// Fetch streams one track. The caller closes the body.
func (h *HTTP) Fetch(ctx context.Context, theme, filename string) (io.ReadCloser, error) {
	if err := checkName("theme", theme); err != nil {
		return nil, err
	}
	if err := checkName("file", filename); err != nil {
		return nil, err
	}
	resp, err := h.get(ctx, h.baseURL+"/music/"+url.PathEscape(theme)+"/"+url.PathEscape(filename))
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", theme, filename, err)
	}
	return resp.Body, nil
}

func (h *HTTP) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
}

func decodeListing(body []byte) ([]string, error) {
	var names []string
	if err := json.Unmarshal(body, &names); err == nil {
		return names, nil
	}
	var wrapped struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Files, nil
}
