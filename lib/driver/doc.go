// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package driver is the catalog of measurement drivers and their
// per-driver settings.
//
// A [Driver] is registered statically in a [Registry] under its name.
// Per-driver settings come from a file shaped like
//
//	dht22:  {enabled: true, read_in_sec: 60, gpio_pin: 4}
//	system: {enabled: true, read_in_sec: 30}
//
// in YAML, or the equivalent JSON with comments (.json/.jsonc).
// [Registry.Enabled] filters it down to the drivers the scheduler
// should run. A missing or unreadable settings file yields an empty
// [Settings]: the agent starts with zero drivers rather than failing.
package driver
