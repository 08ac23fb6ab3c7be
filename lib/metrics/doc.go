// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the agent's Prometheus instruments.
//
// A nil *Metrics is valid and records nothing, so components take a
// *Metrics without checking whether metrics are enabled. [Serve]
// publishes the registry on /metrics when a listen address is
// configured.
package metrics
