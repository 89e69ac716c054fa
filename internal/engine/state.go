/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"github.com/friendsincode/backdrop/internal/events"
	"github.com/friendsincode/backdrop/internal/scheduler"
)

// Song is a catalog entry as shown to listeners.
type Song struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
}

// State is a snapshot of the control surface.
type State struct {
	SessionID      string  `json:"session_id"`
	Theme          string  `json:"theme"`
	Ready          bool    `json:"ready"`
	Playing        bool    `json:"playing"`
	Muted          bool    `json:"muted"`
	Volume         float64 `json:"volume"`
	ActiveRail     string  `json:"active_rail,omitempty"`
	CurrentSong    *Song   `json:"current_song,omitempty"`
	AvailableSongs []Song  `json:"available_songs"`
	AutoCycling    bool    `json:"auto_cycling"`
}

// State returns the current snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	st := State{
		SessionID:   e.id,
		Theme:       e.opts.Theme,
		Muted:       e.muted,
		Volume:      e.volume,
		AutoCycling: true,
	}
	if e.closed || e.machine == nil {
		st.AvailableSongs = []Song{}
		return st
	}

	tracks := e.cat.Tracks()
	st.AvailableSongs = make([]Song, len(tracks))
	for i, t := range tracks {
		st.AvailableSongs[i] = Song{Index: t.Index, Name: t.Name, Filename: t.Filename}
	}
	st.Ready = e.cat.Ready()
	st.Playing = e.machine.Playing()
	st.AutoCycling = e.machine.AutoCycling()
	if st.Playing {
		st.ActiveRail = e.machine.Active().String()
	}
	if cur := e.machine.Current(); cur >= 0 && cur < len(st.AvailableSongs) {
		song := st.AvailableSongs[cur]
		st.CurrentSong = &song
	}
	return st
}

func (e *Engine) publishStateLocked() {
	st := e.stateLocked()
	e.bus.Publish(events.EventPlaybackState, events.Payload{
		"session_id":   st.SessionID,
		"theme":        st.Theme,
		"ready":        st.Ready,
		"playing":      st.Playing,
		"muted":        st.Muted,
		"volume":       st.Volume,
		"auto_cycling": st.AutoCycling,
	})
}

func (e *Engine) publishNowPlayingLocked(plan scheduler.Plan) {
	payload := events.Payload{
		"session_id": e.id,
		"theme":      e.opts.Theme,
		"index":      plan.Track,
		"rail":       plan.Rail.String(),
		"reason":     string(plan.Reason),
		"fade_ms":    plan.FadeIn.Milliseconds(),
	}
	if t, ok := e.cat.Track(plan.Track); ok {
		payload["name"] = t.Name
		payload["file"] = t.Filename
	}
	e.bus.Publish(events.EventNowPlaying, payload)
}
