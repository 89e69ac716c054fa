/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus fans engine events out beyond the process.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	// Subjects are SubjectPrefix + "." + event type.
	SubjectPrefix string
	NodeID        string

	// Mirror redelivers events published by other nodes to local subscribers.
	Mirror bool

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "backdrop.events",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus publishes events to a local bus and to NATS. When NATS cannot be
// reached it keeps working as the local bus alone.
type NATSBus struct {
	local  *events.Bus
	conn   *nats.Conn
	prefix string
	nodeID string
	logger zerolog.Logger

	mu     sync.Mutex
	mirror *nats.Subscription
}

// NewNATSBus connects to NATS and wraps local.
func NewNATSBus(cfg NATSConfig, local *events.Bus, logger zerolog.Logger) *NATSBus {
	if cfg.NodeID == "" {
		cfg.NodeID = generateNodeID()
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultNATSConfig().SubjectPrefix
	}
	nb := &NATSBus{
		local:  local,
		prefix: cfg.SubjectPrefix,
		nodeID: cfg.NodeID,
		logger: logger.With().Str("component", "eventbus").Str("node_id", cfg.NodeID).Logger(),
	}

	opts := []nats.Option{
		nats.Name("backdrop-" + cfg.NodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			nb.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			nb.logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS connection failed, publishing locally only")
		return nb
	}
	nb.conn = conn
	nb.logger.Info().Str("url", conn.ConnectedUrl()).Msg("NATS event bus initialized")

	if cfg.Mirror {
		if err := nb.startMirror(); err != nil {
			nb.logger.Warn().Err(err).Msg("NATS mirror subscription failed")
		}
	}
	return nb
}

// Connected reports whether events reach NATS.
func (nb *NATSBus) Connected() bool {
	return nb.conn != nil && nb.conn.IsConnected()
}

// Subject returns the NATS subject of an event type.
func (nb *NATSBus) Subject(eventType events.EventType) string {
	return nb.prefix + "." + string(eventType)
}

// Subscribe registers a local subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	return nb.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Publish delivers to local subscribers, then to NATS.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)
	if nb.conn == nil {
		return
	}

	data, err := marshalNATSMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal NATS message")
		return
	}
	if err := nb.conn.Publish(nb.Subject(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

func (nb *NATSBus) startMirror() error {
	sub, err := nb.conn.Subscribe(nb.prefix+".>", func(m *nats.Msg) {
		msg, err := unmarshalNATSMessage(m.Data)
		if err != nil {
			nb.logger.Warn().Err(err).Str("subject", m.Subject).Msg("dropping malformed NATS message")
			return
		}
		// Skip messages from ourselves (prevent echo)
		if msg.NodeID == nb.nodeID {
			return
		}
		nb.local.Publish(msg.EventType, msg.Payload)
	})
	if err != nil {
		return err
	}
	nb.mu.Lock()
	nb.mirror = sub
	nb.mu.Unlock()
	return nil
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	nb.mu.Lock()
	if nb.mirror != nil {
		_ = nb.mirror.Unsubscribe()
		nb.mirror = nil
	}
	nb.mu.Unlock()
	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

// natsMessage represents a message published to NATS.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // For deduplication
}

func marshalNATSMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	return json.Marshal(msg)
}

func unmarshalNATSMessage(data []byte) (*natsMessage, error) {
	var msg natsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("nats message without event type")
	}
	return &msg, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "backdrop"
	}
	return host + "-" + uuid.NewString()[:8]
}
