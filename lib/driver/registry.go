// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/nettemp-agent/lib/reading"
)

// Entry is one driver the scheduler should run.
type Entry struct {
	Name     string
	Config   Config
	Interval time.Duration
}

// Registry maps driver names to implementations. Safe for concurrent
// use.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
	logger  *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{drivers: make(map[string]Driver), logger: logger}
}

// Register adds d. A second driver with the same name replaces the
// first.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Name()] = d
}

// Lookup returns the driver registered under name.
func (r *Registry) Lookup(name string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	return d, ok
}

// Discover returns the sorted names of every registered driver.
func (r *Registry) Discover() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// maxIntervalSeconds is the largest read_in_sec whose interval fits in
// a time.Duration.
const maxIntervalSeconds = int(math.MaxInt64 / int64(time.Second))

// Enabled returns the drivers in settings that are enabled, have a
// read_in_sec coercible to a positive integer, and are registered.
// Every rejected entry is logged at warn level; none is fatal. The
// result is sorted by name.
func (r *Registry) Enabled(settings Settings) []Entry {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []Entry
	for _, name := range names {
		config := settings[name]
		if config == nil || !config.Bool("enabled") {
			continue
		}
		raw, present := config["read_in_sec"]
		if !present {
			r.logger.Warn("driver has no read_in_sec, skipping", "driver", name)
			continue
		}
		seconds, ok := toInt(raw)
		if !ok || seconds <= 0 || seconds > maxIntervalSeconds {
			r.logger.Warn("driver has invalid read_in_sec, skipping",
				"driver", name,
				"read_in_sec", raw,
			)
			continue
		}
		if _, known := r.Lookup(name); !known {
			r.logger.Warn("enabled driver is not available in this build, skipping", "driver", name)
			continue
		}
		entries = append(entries, Entry{
			Name:     name,
			Config:   config,
			Interval: time.Duration(seconds) * time.Second,
		})
	}
	return entries
}

// Run invokes the named driver. A panic inside the driver is recovered
// and returned as an error; on any error the readings are nil.
func (r *Registry) Run(ctx context.Context, name string, config Config) (readings []reading.Reading, err error) {
	d, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("driver %q is not registered", name)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			readings = nil
			err = fmt.Errorf("driver %q panicked: %v", name, recovered)
		}
	}()
	readings, err = d.Read(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("driver %q: %w", name, err)
	}
	return readings, nil
}
