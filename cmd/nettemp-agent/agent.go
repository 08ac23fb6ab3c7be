// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/nettemp-agent/lib/buffer"
	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/config"
	"github.com/bureau-foundation/nettemp-agent/lib/delivery"
	"github.com/bureau-foundation/nettemp-agent/lib/driver"
	"github.com/bureau-foundation/nettemp-agent/lib/metrics"
	"github.com/bureau-foundation/nettemp-agent/lib/mqttrelay"
	"github.com/bureau-foundation/nettemp-agent/lib/payload"
	"github.com/bureau-foundation/nettemp-agent/lib/reading"
	"github.com/bureau-foundation/nettemp-agent/lib/scheduler"
	"github.com/bureau-foundation/nettemp-agent/lib/version"
)

const defaultFlushInterval = 60 * time.Second

type agentDeps struct {
	Clock    clock.Clock
	Logger   *slog.Logger
	Registry *driver.Registry

	// HTTPClient is shared by the http and legacy destinations.
	HTTPClient *http.Client

	// Relay overrides the MQTT relay built from the config.
	Relay *mqttrelay.Relay
}

// agent owns every long-lived component.
type agent struct {
	cfg       *config.Config
	deviceID  string
	logger    *slog.Logger
	buffer    *buffer.Buffer
	manager   *delivery.Manager
	relay     *mqttrelay.Relay
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics

	// mu is held shared by every delivery and exclusively by Close, so
	// resources are released only after in-flight deliveries return.
	mu     sync.RWMutex
	closed bool
}

func newAgent(cfg *config.Config, deps agentDeps) (*agent, error) {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{}
	}
	deviceID := cfg.DeviceID()
	m := metrics.New()

	store, err := buffer.Open(buffer.Config{
		Path:        cfg.Buffer.Path,
		BusyTimeout: cfg.Buffer.BusyTimeout,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening offline buffer: %w", err)
	}

	manager, err := delivery.NewManager(delivery.Config{
		Destinations: cfg.DeliveryDestinations(),
		Store:        store,
		Transformer:  payload.NewTransformer(deviceID, deps.Clock),
		Clock:        deps.Clock,
		Logger:       deps.Logger,
		Metrics:      m,
		HTTPClient:   deps.HTTPClient,
		UserAgent:    version.UserAgent(),
		FlushLimit:   cfg.Buffer.FlushLimit,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	if len(manager.Destinations()) == 0 {
		deps.Logger.Warn("no usable destinations; readings will be discarded")
	}

	relay := deps.Relay
	if relay == nil {
		relay = mqttrelay.New(cfg.MQTTRelay(deviceID), deps.Logger, m)
	}

	a := &agent{
		cfg:      cfg,
		deviceID: deviceID,
		logger:   deps.Logger,
		buffer:   store,
		manager:  manager,
		relay:    relay,
		metrics:  m,
	}

	a.scheduler, err = scheduler.New(scheduler.Config{
		Registry:             deps.Registry,
		SettingsPath:         cfg.DriversFile,
		ConfigPath:           cfg.Path(),
		Sink:                 scheduler.SinkFunc(a.deliver),
		Clock:                deps.Clock,
		Logger:               deps.Logger,
		Metrics:              m,
		DriverTimeout:        cfg.DriverTimeout,
		SettingsPollInterval: cfg.Watch.DriversInterval,
		ConfigPollInterval:   cfg.Watch.ConfigInterval,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// deliver hands one driver's readings to the relay and the delivery
// manager. Neither can fail the invocation.
func (a *agent) deliver(ctx context.Context, driverName string, readings []reading.Reading) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Debug("agent closed, discarding readings", "driver", driverName, "readings", len(readings))
		return
	}
	a.relay.Publish(ctx, driverName, readings)
	if !a.manager.Send(ctx, readings) {
		a.logger.Debug("readings not delivered to any destination", "driver", driverName, "readings", len(readings))
	}
}

// Run blocks until ctx is done or the scheduler requests a restart,
// whose sentinel error it returns.
func (a *agent) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.scheduler.Run(groupCtx)
	})

	flushInterval := a.cfg.Buffer.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	group.Go(func() error {
		return a.manager.RunFlushLoop(groupCtx, flushInterval)
	})

	if listen := a.cfg.Metrics.Listen; listen != "" {
		group.Go(func() error {
			if err := metrics.Serve(groupCtx, a.metrics, listen, a.logger); err != nil {
				a.logger.Error("metrics listener failed", "listen", listen, "error", err)
			}
			return nil
		})
	}

	return group.Wait()
}

// Close stops accepting deliveries, then releases the relay, the
// senders and the buffer. Scheduler jobs abandoned by Run may still
// call deliver concurrently.
func (a *agent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.relay.Close()
	a.manager.Close()
	if err := a.buffer.Close(); err != nil {
		a.logger.Error("closing offline buffer", "error", err)
	}
}
