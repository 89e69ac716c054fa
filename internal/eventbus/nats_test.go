/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/events"
)

func TestNATSMessageEnvelope(t *testing.T) {
	data, err := marshalNATSMessage(events.EventNowPlaying, events.Payload{"index": 2, "name": "Creek"}, "node-a")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	msg, err := unmarshalNATSMessage(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EventType != events.EventNowPlaying || msg.NodeID != "node-a" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
	if msg.MessageID == "" {
		t.Fatal("expected message id")
	}
	if msg.Payload["name"] != "Creek" {
		t.Fatalf("unexpected payload: %v", msg.Payload)
	}

	if _, err := unmarshalNATSMessage([]byte(`{"payload":{}}`)); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestNATSBusFallsBackToLocal(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond
	cfg.NodeID = "test-node"

	local := events.NewBus()
	nb := NewNATSBus(cfg, local, zerolog.Nop())
	defer nb.Close()

	if nb.Connected() {
		t.Fatal("expected no NATS connection")
	}
	if got := nb.Subject(events.EventPlaybackState); got != "backdrop.events.playback.state" {
		t.Fatalf("unexpected subject %q", got)
	}

	sub := nb.Subscribe(events.EventPlaybackState)
	nb.Publish(events.EventPlaybackState, events.Payload{"playing": true})
	select {
	case p := <-sub:
		if p["playing"] != true {
			t.Fatalf("unexpected payload %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("local subscriber did not receive event")
	}
}

func TestGenerateNodeID(t *testing.T) {
	a, b := generateNodeID(), generateNodeID()
	if a == b {
		t.Fatal("expected unique node ids")
	}
	if !strings.Contains(a, "-") {
		t.Fatalf("unexpected node id %q", a)
	}
}
