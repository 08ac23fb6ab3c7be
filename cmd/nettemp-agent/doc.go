// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// nettemp-agent reads local sensors on per-driver intervals and
// delivers the readings to one or more remote collectors.
//
// The agent loads its primary configuration (--config, default
// $NETTEMP_CONFIG or ./config.conf) and the per-driver settings file it
// names. Each enabled driver runs once at startup and then on its own
// interval. Readings are normalized into the collector payload, split
// into batches, and posted to every usable destination with retry; a
// batch that cannot be delivered goes to a SQLite offline buffer and is
// flushed later. Readings are also published to an MQTT broker when
// one is configured.
//
// Editing the driver settings file reschedules the drivers in place.
// Editing the primary configuration makes the agent re-execute itself
// with the same arguments.
//
// Inspection modes:
//
//	nettemp-agent --list-drivers   # registered drivers and their settings
//	nettemp-agent --dump-buffer    # every buffered batch, one JSON object per line
package main
