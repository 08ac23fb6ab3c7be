// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bureau-foundation/nettemp-agent/lib/buffer"
	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/metrics"
	"github.com/bureau-foundation/nettemp-agent/lib/payload"
	"github.com/bureau-foundation/nettemp-agent/lib/reading"
)

const (
	// MaxRequests bounds the requests made for one sub-batch.
	MaxRequests = 3

	// DefaultFlushLimit is the number of buffered entries one flush
	// pass examines.
	DefaultFlushLimit = 10

	timeoutRetryDelay = time.Second
)

// Store is the offline buffer as seen by the Manager.
type Store interface {
	Enqueue(ctx context.Context, destination string, p payload.Payload) (int64, error)
	Pending(ctx context.Context, limit int, destinations []string) ([]buffer.Entry, error)
	Delete(ctx context.Context, id int64) error
	IncrementAttempts(ctx context.Context, id int64) error
	Stats(ctx context.Context) (buffer.Stats, error)
}

// Config holds the parameters for NewManager.
type Config struct {
	// Destinations lists every configured destination, usable or not.
	// Unusable ones are logged and ignored.
	Destinations []Destination

	Store       Store
	Transformer *payload.Transformer
	Clock       clock.Clock
	Logger      *slog.Logger
	Metrics     *metrics.Metrics

	// HTTPClient is shared by the http and legacy senders. Defaults
	// to a client without an overall timeout; each destination's
	// Timeout applies per request.
	HTTPClient *http.Client

	UserAgent string

	// FlushLimit is the number of entries one flush pass examines.
	// Defaults to DefaultFlushLimit.
	FlushLimit int

	// NewSender overrides sender construction.
	NewSender func(Destination) (Sender, error)
}

type target struct {
	destination Destination
	sender      Sender
}

// Manager delivers payloads to every usable destination and manages
// the offline buffer.
type Manager struct {
	targets     []*target
	byName      map[string]*target
	store       Store
	transformer *payload.Transformer
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics
	flushLimit  int

	// flushing admits one flush pass at a time.
	flushing sync.Mutex
}

// NewManager builds the senders for every usable destination.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("delivery: Store is required")
	}
	if cfg.Transformer == nil {
		return nil, errors.New("delivery: Transformer is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.FlushLimit <= 0 {
		cfg.FlushLimit = DefaultFlushLimit
	}
	newSender := cfg.NewSender
	if newSender == nil {
		newSender = func(destination Destination) (Sender, error) {
			return defaultSender(destination, cfg.HTTPClient, cfg.UserAgent)
		}
	}

	m := &Manager{
		byName:      make(map[string]*target),
		store:       cfg.Store,
		transformer: cfg.Transformer,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		flushLimit:  cfg.FlushLimit,
	}
	for _, destination := range cfg.Destinations {
		destination = destination.WithDefaults()
		if _, duplicate := m.byName[destination.Name]; duplicate {
			m.Close()
			return nil, fmt.Errorf("delivery: duplicate destination name %q", destination.Name)
		}
		if usable, reason := destination.Usable(); !usable {
			m.logger.Info("destination not used", "destination", destination.Name, "reason", reason)
			continue
		}
		sender, err := newSender(destination)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("delivery: destination %q: %w", destination.Name, err)
		}
		t := &target{destination: destination, sender: sender}
		m.targets = append(m.targets, t)
		m.byName[destination.Name] = t
		m.logger.Info("destination configured",
			"destination", destination.Name,
			"kind", destination.Kind,
			"url", destination.URL,
			"batch_size", destination.BatchSize,
		)
	}
	return m, nil
}

func defaultSender(destination Destination, client *http.Client, userAgent string) (Sender, error) {
	switch destination.Kind {
	case KindHTTP:
		return NewHTTPSender(destination, client, userAgent), nil
	case KindLegacy:
		return NewLegacySender(destination, client, userAgent), nil
	case KindInflux:
		return NewInfluxSender(destination), nil
	default:
		return nil, fmt.Errorf("unknown kind %q", destination.Kind)
	}
}

// Destinations returns the names of the usable destinations in
// configuration order.
func (m *Manager) Destinations() []string {
	names := make([]string, 0, len(m.targets))
	for _, t := range m.targets {
		names = append(names, t.destination.Name)
	}
	return names
}

// Close releases sender resources.
func (m *Manager) Close() {
	for _, t := range m.targets {
		if closer, ok := t.sender.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// Send transforms readings into a payload and delivers it. Malformed
// readings are dropped with a warning. Returns true iff at least one
// destination accepted at least one sub-batch.
func (m *Manager) Send(ctx context.Context, readings []reading.Reading) bool {
	p, rejected := m.transformer.Transform(readings)
	for _, readingErr := range rejected {
		m.logger.Warn("dropping malformed reading",
			"rom", readingErr.ROM,
			"index", readingErr.Index,
			"error", readingErr.Err,
		)
	}
	if p.Len() == 0 {
		m.logger.Debug("nothing to send", "readings", len(readings), "dropped", len(rejected))
		return false
	}
	return m.SendPayload(ctx, p)
}

// SendPayload delivers p to every usable destination. Sub-batches that
// fail are buffered under the failing destination's name. When any
// destination accepted data, a flush pass runs for the destinations
// that succeeded.
func (m *Manager) SendPayload(ctx context.Context, p payload.Payload) bool {
	if len(m.targets) == 0 {
		m.logger.Debug("no usable destinations, payload discarded", "readings", p.Len())
		return false
	}

	var succeeded []string
	for _, t := range m.targets {
		name := t.destination.Name
		accepted := false
		for _, batch := range payload.Split(p, t.destination.BatchSize) {
			outcome := m.deliver(ctx, t, batch)
			if outcome.Kind == Delivered {
				accepted = true
				m.metrics.ReadingsDelivered(name, batch.Len())
				continue
			}
			m.bufferBatch(ctx, name, batch, outcome)
		}
		if accepted {
			succeeded = append(succeeded, name)
			m.logger.Debug("payload delivered", "destination", name, "readings", p.Len())
		}
	}

	if len(succeeded) > 0 {
		if _, err := m.Flush(ctx, m.flushLimit, succeeded...); err != nil {
			m.logger.Warn("flush after send failed", "error", err)
		}
	}
	m.recordDepth(ctx)
	return len(succeeded) > 0
}

func (m *Manager) bufferBatch(ctx context.Context, destination string, batch payload.Payload, outcome Outcome) {
	// Buffer even when ctx is done: readings taken before shutdown
	// must survive it.
	id, err := m.store.Enqueue(context.WithoutCancel(ctx), destination, batch)
	if err != nil {
		m.logger.Error("buffering failed delivery",
			"destination", destination,
			"readings", batch.Len(),
			"delivery_error", outcome.Err,
			"error", err,
		)
		return
	}
	m.metrics.ReadingsBuffered(destination, batch.Len())
	m.logger.Warn("delivery failed, buffered for retry",
		"destination", destination,
		"outcome", outcome.Kind.String(),
		"status", outcome.StatusCode,
		"readings", batch.Len(),
		"buffer_id", id,
		"error", outcome.Err,
	)
}

// deliver applies the retry policy to one sub-batch.
func (m *Manager) deliver(ctx context.Context, t *target, batch payload.Payload) Outcome {
	name := t.destination.Name
	timeoutRetried := false
	var outcome Outcome
	for attempt := 0; attempt < MaxRequests; attempt++ {
		outcome = t.sender.Send(ctx, batch)
		m.metrics.DeliveryRequest(name, outcome.Kind.String())
		last := attempt == MaxRequests-1

		switch outcome.Kind {
		case Delivered:
			return outcome
		case Unauthorized:
			m.logger.Error("destination rejected API key", "destination", name, "url", t.destination.URL)
			return outcome
		case RateLimited:
			if last {
				return outcome
			}
			delay := time.Duration(1<<attempt) * time.Second
			m.logger.Info("rate limited, backing off", "destination", name, "delay", delay)
			if err := m.wait(ctx, delay); err != nil {
				return Outcome{Kind: Failed, StatusCode: outcome.StatusCode, Err: err}
			}
		case TimedOut:
			if timeoutRetried || last {
				return outcome
			}
			timeoutRetried = true
			m.logger.Info("request timed out, retrying", "destination", name)
			if err := m.wait(ctx, timeoutRetryDelay); err != nil {
				return Outcome{Kind: Failed, Err: err}
			}
		default:
			return outcome
		}
	}
	return outcome
}

func (m *Manager) wait(ctx context.Context, delay time.Duration) error {
	select {
	case <-m.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FlushResult counts what one flush pass did.
type FlushResult struct {
	Delivered int
	Failed    int

	// Skipped counts entries left alone because their destination
	// already failed earlier in the pass.
	Skipped int
}

// Flush runs one pass over up to limit pending entries, oldest first,
// redelivering each to its recorded destination. With no destinations
// named, every usable destination is flushed; named destinations that
// are not usable are ignored, and entries recorded for destinations
// that are no longer configured are never selected.
//
// Only one pass runs at a time. A call made while another pass is
// running returns immediately with a zero result.
func (m *Manager) Flush(ctx context.Context, limit int, destinations ...string) (FlushResult, error) {
	if !m.flushing.TryLock() {
		m.logger.Debug("flush already in progress, skipping")
		return FlushResult{}, nil
	}
	defer m.flushing.Unlock()

	names := m.flushTargets(destinations)
	if len(names) == 0 {
		return FlushResult{}, nil
	}

	entries, err := m.store.Pending(ctx, limit, names)
	if err != nil {
		return FlushResult{}, fmt.Errorf("delivery: reading buffer: %w", err)
	}

	var result FlushResult
	failed := make(map[string]bool)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if failed[entry.Destination] {
			result.Skipped++
			continue
		}
		t := m.byName[entry.Destination]

		outcome := m.deliver(ctx, t, entry.Payload)
		if outcome.Kind == Delivered {
			if err := m.store.Delete(context.WithoutCancel(ctx), entry.ID); err != nil {
				return result, fmt.Errorf("delivery: deleting buffered entry %d: %w", entry.ID, err)
			}
			result.Delivered++
			m.metrics.FlushEntry(entry.Destination, "delivered")
			m.metrics.ReadingsDelivered(entry.Destination, entry.Payload.Len())
			continue
		}

		failed[entry.Destination] = true
		result.Failed++
		m.metrics.FlushEntry(entry.Destination, "failed")
		if err := m.store.IncrementAttempts(context.WithoutCancel(ctx), entry.ID); err != nil {
			return result, fmt.Errorf("delivery: recording attempt on entry %d: %w", entry.ID, err)
		}
		m.logger.Warn("buffered entry redelivery failed",
			"destination", entry.Destination,
			"buffer_id", entry.ID,
			"attempts", entry.Attempts+1,
			"outcome", outcome.Kind.String(),
			"error", outcome.Err,
		)
	}

	if result.Delivered > 0 || result.Failed > 0 {
		m.logger.Info("flush pass complete",
			"delivered", result.Delivered,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
	}
	return result, nil
}

func (m *Manager) flushTargets(requested []string) []string {
	if len(requested) == 0 {
		return m.Destinations()
	}
	names := make([]string, 0, len(requested))
	for _, name := range requested {
		if _, ok := m.byName[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// RunFlushLoop flushes every usable destination once per interval
// until ctx is done.
func (m *Manager) RunFlushLoop(ctx context.Context, interval time.Duration) error {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Flush(ctx, m.flushLimit); err != nil {
				m.logger.Warn("periodic flush failed", "error", err)
			}
			m.recordDepth(ctx)
		}
	}
}

func (m *Manager) recordDepth(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return
	}
	m.metrics.SetBufferDepth(stats.Pending, stats.Exhausted)
}
