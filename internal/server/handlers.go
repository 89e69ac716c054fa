/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/friendsincode/backdrop/internal/catalog"
	"github.com/friendsincode/backdrop/internal/engine"
	"github.com/friendsincode/backdrop/internal/history"
)

const (
	defaultLevelBins    = 32
	maxLevelBins        = 512
	defaultHistoryLimit = 50
	maxBodyBytes        = 4 << 10
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeEngineError maps engine and catalog failures to API errors.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidSelection):
		writeError(w, http.StatusBadRequest, "invalid_selection")
	case errors.Is(err, catalog.ErrNoTracks):
		writeError(w, http.StatusNotFound, "no_tracks")
	case errors.Is(err, catalog.ErrTrackUnavailable):
		writeError(w, http.StatusUnprocessableEntity, "track_unavailable")
	case errors.Is(err, engine.ErrNotReady):
		writeError(w, http.StatusConflict, "not_ready")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

// engineOr409 returns the active engine or answers not_ready.
func (s *Server) engineOr409(w http.ResponseWriter) *engine.Engine {
	e := s.host.Engine()
	if e == nil {
		writeError(w, http.StatusConflict, "not_ready")
	}
	return e
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if e := s.host.Engine(); e != nil {
		st := e.State()
		status["theme"] = st.Theme
		status["ready"] = st.Ready
		status["playing"] = st.Playing
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	e := s.engineOr409(w)
	if e == nil {
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	e := s.engineOr409(w)
	if e == nil {
		return
	}
	if err := e.Start(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	e := s.engineOr409(w)
	if e == nil {
		return
	}
	if err := e.Stop(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	e := s.engineOr409(w)
	if e == nil {
		return
	}
	if err := e.TogglePlayback(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	e := s.engineOr409(w)
	if e == nil {
		return
	}
	if _, err := e.ToggleMute(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Volume == nil {
		writeError(w, http.StatusBadRequest, "volume_required")
		return
	}
	e := s.engineOr409(w)
	if e == nil {
		return
	}
	if err := e.SetVolume(*req.Volume); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

type songRequest struct {
	// Index selects a song; -1 returns to shuffled playback.
	Index *int `json:"index"`
}

func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Index == nil {
		writeError(w, http.StatusBadRequest, "index_required")
		return
	}
	e := s.engineOr409(w)
	if e == nil {
		return
	}
	if err := e.SelectSong(r.Context(), *req.Index); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

type themeRequest struct {
	Theme string `json:"theme"`
}

func (s *Server) handleSwitchTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Theme == "" {
		writeError(w, http.StatusBadRequest, "theme_required")
		return
	}
	if err := s.host.SwitchTheme(r.Context(), req.Theme); err != nil {
		s.logger.Warn().Err(err).Str("theme", req.Theme).Msg("theme switch failed")
		writeEngineError(w, err)
		return
	}
	e := s.host.Engine()
	writeJSON(w, http.StatusOK, e.State())
}

func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	if s.themes == nil {
		writeError(w, http.StatusNotImplemented, "themes_unavailable")
		return
	}
	themes, err := s.themes.Themes(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("listing themes failed")
		writeError(w, http.StatusBadGateway, "themes_unavailable")
		return
	}
	current := ""
	if e := s.host.Engine(); e != nil {
		current = e.Theme()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"themes":  themes,
		"current": current,
	})
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	bins := defaultLevelBins
	if raw := r.URL.Query().Get("bins"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLevelBins {
			writeError(w, http.StatusBadRequest, "invalid_bins")
			return
		}
		bins = n
	}
	e := s.engineOr409(w)
	if e == nil {
		return
	}
	levels := e.Levels(bins)
	if levels == nil {
		levels = make([]float64, bins)
	}
	writeJSON(w, http.StatusOK, map[string]any{"levels": levels})
}

// handleHistory lists recently started tracks, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.played == nil {
		writeError(w, http.StatusNotImplemented, "history_unavailable")
		return
	}
	q := history.Query{
		Theme:      r.URL.Query().Get("theme"),
		Limit:      defaultHistoryLimit,
		Descending: true,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		q.Limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.played.Find(q),
		"stats":   s.played.Stats(),
	})
}
