/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the playback controls over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/engine"
	"github.com/friendsincode/backdrop/internal/events"
	"github.com/friendsincode/backdrop/internal/history"
	"github.com/friendsincode/backdrop/internal/telemetry"
)

// ThemeLister enumerates the themes a listener can switch to.
type ThemeLister interface {
	Themes(ctx context.Context) ([]string, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr string
	// RequestTimeout bounds every non-websocket request.
	RequestTimeout time.Duration
	// PingInterval is how often websocket clients receive a keepalive.
	PingInterval time.Duration
}

// Server bundles the control API and its HTTP listener.
type Server struct {
	cfg    Config
	host   *engine.Host
	bus    *events.Bus
	themes ThemeLister
	played *history.Buffer
	logger zerolog.Logger

	router     chi.Router
	httpServer *http.Server
}

// New constructs the server. themes and played may be nil.
func New(cfg Config, host *engine.Host, bus *events.Bus, themes ThemeLister, played *history.Buffer, logger zerolog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		host:   host,
		bus:    bus,
		themes: themes,
		played: played,
		logger: logger.With().Str("component", "server").Logger(),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(s.logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("backdrop-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(cfg.RequestTimeout)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})
	s.router = router
	s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the websocket stream.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/themes", s.handleThemes)
		r.Put("/theme", s.handleSwitchTheme)

		r.Route("/player", func(r chi.Router) {
			r.Get("/", s.handleState)
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/toggle", s.handleToggle)
			r.Post("/mute", s.handleMute)
			r.Put("/volume", s.handleVolume)
			r.Put("/song", s.handleSong)
			r.Get("/levels", s.handleLevels)
			r.Get("/history", s.handleHistory)
			r.Get("/ws", s.handleStream)
		})
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns the underlying http.Server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe serves until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("control API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
