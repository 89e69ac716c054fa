/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/backdrop/internal/engine"
	"github.com/friendsincode/backdrop/internal/events"
	"github.com/friendsincode/backdrop/internal/telemetry"
)

const writeTimeout = 5 * time.Second

// streamMessage is one websocket frame. State is the snapshot taken after the
// event was received.
type streamMessage struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload,omitempty"`
	State   *engine.State    `json:"state,omitempty"`
}

// handleStream pushes a state snapshot on connect and after every engine
// event until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.WebsocketClients.Inc()
	defer telemetry.WebsocketClients.Dec()

	// The client never sends anything we act on; CloseRead handles control
	// frames and cancels ctx when the peer closes.
	ctx := conn.CloseRead(r.Context())

	updates := make(chan streamMessage, 16)
	var wg sync.WaitGroup
	subs := make([]events.Subscriber, len(events.All))
	for i, eventType := range events.All {
		sub := s.bus.Subscribe(eventType)
		subs[i] = sub
		wg.Add(1)
		go func(eventType events.EventType, sub events.Subscriber) {
			defer wg.Done()
			for payload := range sub {
				select {
				case updates <- streamMessage{Type: eventType, Payload: payload}:
				default:
					// Slow client; the next snapshot supersedes this one.
				}
			}
		}(eventType, sub)
	}
	defer func() {
		for i, eventType := range events.All {
			s.bus.Unsubscribe(eventType, subs[i])
		}
		wg.Wait()
	}()

	if err := s.writeStream(ctx, conn, streamMessage{Type: events.EventPlaybackState}); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case msg := <-updates:
			if err := s.writeStream(ctx, conn, msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeStream(ctx context.Context, conn *ws.Conn, msg streamMessage) error {
	if e := s.host.Engine(); e != nil {
		st := e.State()
		msg.State = &st
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		s.logger.Debug().Err(err).Msg("websocket write failed")
		return err
	}
	return nil
}
