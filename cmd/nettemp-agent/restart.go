// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/restart"
)

const restartReason = "configuration changed"

// checkRestartMarker logs and clears a marker left by the previous
// process image.
func checkRestartMarker(path string, clk clock.Clock, logger *slog.Logger) {
	marker, found, err := restart.Check(path, clk.Now(), restart.DefaultMaxAge)
	if err != nil {
		logger.Warn("restart marker unreadable", "path", path, "error", err)
	}
	if found {
		logger.Info("restarted after "+marker.Reason, "initiated_at", marker.Timestamp, "executable", marker.Executable)
	}
	if err != nil || found {
		if err := restart.Clear(path); err != nil {
			logger.Warn("clearing restart marker", "error", err)
		}
	}
}

// restartProcess records the restart and re-executes the binary. It
// only returns on failure.
func restartProcess(markerPath string, clk clock.Clock, logger *slog.Logger) error {
	executable, err := restart.Execer{}.Path()
	if err != nil {
		return err
	}
	marker := restart.Marker{Reason: restartReason, Executable: executable, Timestamp: clk.Now()}
	if err := restart.Write(markerPath, marker); err != nil {
		logger.Warn("writing restart marker", "path", markerPath, "error", err)
	}
	logger.Info("re-executing", "executable", executable, "reason", restartReason)
	return reexec()
}
