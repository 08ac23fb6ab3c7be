// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/bureau-foundation/nettemp-agent/lib/buffer"
	"github.com/bureau-foundation/nettemp-agent/lib/config"
	"github.com/bureau-foundation/nettemp-agent/lib/driver"
	"github.com/bureau-foundation/nettemp-agent/lib/payload"
)

// listDrivers prints every registered driver with its schedule from
// the settings file.
func listDrivers(w io.Writer, registry *driver.Registry, settingsPath string, logger *slog.Logger) error {
	enabled := make(map[string]time.Duration)
	for _, entry := range registry.Enabled(driver.LoadSettings(settingsPath, logger)) {
		enabled[entry.Name] = entry.Interval
	}

	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "DRIVER\tSTATUS\tINTERVAL")
	for _, name := range registry.Discover() {
		if interval, ok := enabled[name]; ok {
			fmt.Fprintf(table, "%s\tenabled\t%s\n", name, interval)
		} else {
			fmt.Fprintf(table, "%s\tdisabled\t-\n", name)
		}
	}
	return table.Flush()
}

type bufferDump struct {
	ID          int64           `json:"id"`
	Destination string          `json:"destination"`
	Timestamp   time.Time       `json:"timestamp"`
	Attempts    int             `json:"attempts"`
	Exhausted   bool            `json:"exhausted"`
	Payload     payload.Payload `json:"payload"`
}

// dumpBuffer writes every buffered entry, exhausted ones included, as
// one JSON object per line.
func dumpBuffer(ctx context.Context, w io.Writer, cfg *config.Config, logger *slog.Logger) error {
	store, err := buffer.Open(buffer.Config{
		Path:        cfg.Buffer.Path,
		BusyTimeout: cfg.Buffer.BusyTimeout,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("opening offline buffer: %w", err)
	}
	defer store.Close()

	entries, err := store.Entries(ctx)
	if err != nil {
		return fmt.Errorf("reading offline buffer: %w", err)
	}
	encoder := json.NewEncoder(w)
	for _, entry := range entries {
		if err := encoder.Encode(bufferDump{
			ID:          entry.ID,
			Destination: entry.Destination,
			Timestamp:   entry.Timestamp.UTC(),
			Attempts:    entry.Attempts,
			Exhausted:   entry.Exhausted(),
			Payload:     entry.Payload,
		}); err != nil {
			return err
		}
	}
	return nil
}
