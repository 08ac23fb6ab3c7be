// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mqttrelay republishes each driver's readings to an MQTT
// broker. The relay is a side channel: publishes are fire-and-forget,
// failures are logged and counted, and nothing here affects HTTP
// delivery or the offline buffer.
package mqttrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bureau-foundation/nettemp-agent/lib/metrics"
	"github.com/bureau-foundation/nettemp-agent/lib/reading"
)

const (
	// DefaultPort is the plain MQTT port.
	DefaultPort = 1883

	// DefaultTopicPrefix is the first topic level.
	DefaultTopicPrefix = "nettemp"

	// DefaultPublishTimeout bounds how long a publish is tracked
	// before it is counted as failed.
	DefaultPublishTimeout = 10 * time.Second

	// placeholder is the legacy configuration value meaning "unset".
	placeholder = "empty"
)

// Config describes the broker connection.
type Config struct {
	Server         string
	Port           int
	Username       string
	Password       string
	ClientID       string
	TopicPrefix    string
	Group          string
	PublishTimeout time.Duration
}

// Enabled reports whether cfg names a broker.
func (c Config) Enabled() bool {
	server := strings.TrimSpace(c.Server)
	return server != "" && server != placeholder
}

// BrokerURL returns the paho broker address. A server that already
// carries a scheme is used unchanged.
func (c Config) BrokerURL() string {
	if strings.Contains(c.Server, "://") {
		return c.Server
	}
	port := c.Port
	if port <= 0 {
		port = DefaultPort
	}
	return "tcp://" + c.Server + ":" + strconv.Itoa(port)
}

// Relay publishes readings. A nil *Relay is valid and does nothing, so
// callers need not branch on whether MQTT is configured.
type Relay struct {
	client  mqtt.Client
	prefix  string
	group   string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New returns a relay connected (in the background) to the broker in
// cfg, or nil when cfg is disabled. The client reconnects on its own;
// publishes while disconnected fail and are logged.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Relay {
	if !cfg.Enabled() {
		return nil
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "nettemp-" + cfg.Group
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" && cfg.Username != placeholder {
		opts.SetUsername(cfg.Username)
		if cfg.Password != placeholder {
			opts.SetPassword(cfg.Password)
		}
	}
	client := mqtt.NewClient(opts)
	relay := NewWithClient(client, cfg, logger, m)

	// With ConnectRetry the token only completes once connected, so
	// it is watched rather than waited on.
	token := client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			logger.Warn("mqtt connect failed", "broker", cfg.BrokerURL(), "error", err)
			return
		}
		logger.Info("mqtt connected", "broker", cfg.BrokerURL())
	}()
	return relay
}

// NewWithClient wraps an existing client without connecting it.
func NewWithClient(client mqtt.Client, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Relay {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Relay{
		client:  client,
		prefix:  prefix,
		group:   cfg.Group,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Topic returns the topic a driver's readings go to.
func (r *Relay) Topic(driver string) string {
	return r.prefix + "/" + topicLevel(r.group) + "/" + topicLevel(driver)
}

// topicLevel keeps a name inside a single topic level.
func topicLevel(name string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(name)
}

// Publish sends readings as a JSON array at QoS 0 and returns without
// waiting for the broker. Empty batches are not published, and neither
// is anything after Close.
func (r *Relay) Publish(ctx context.Context, driver string, readings []reading.Reading) {
	if r == nil || len(readings) == 0 {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Debug("mqtt relay closed, dropping readings", "driver", driver, "readings", len(readings))
		return
	}
	r.inflight.Add(1)
	r.mu.Unlock()
	r.publish(ctx, driver, readings)
}

func (r *Relay) publish(ctx context.Context, driver string, readings []reading.Reading) {
	topic := r.Topic(driver)
	payload, err := json.Marshal(readings)
	if err != nil {
		r.logger.Warn("mqtt payload encoding failed", "topic", topic, "error", err)
		r.metrics.MQTTPublish(err)
		r.inflight.Done()
		return
	}

	token := r.client.Publish(topic, 0, false, payload)
	go func() {
		defer r.inflight.Done()
		err := r.await(ctx, token)
		r.metrics.MQTTPublish(err)
		if err != nil {
			r.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
			return
		}
		r.logger.Debug("mqtt published", "topic", topic, "readings", len(readings))
	}()
}

func (r *Relay) await(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish not acknowledged within %s", r.timeout)
	}
}

// Close stops accepting publishes, waits for tracked ones, and
// disconnects. Publish may be called concurrently with Close.
func (r *Relay) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.inflight.Wait()
	r.client.Disconnect(250)
}
