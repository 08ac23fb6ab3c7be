// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package payload converts driver readings into the collector wire
// format.
//
// A [Payload] is one batch: a device identifier plus normalized
// readings, each with a stable sensor_id inferred from the legacy
// free-text ROM field. Identity inference is heuristic; see [SensorID]
// for the rule order. Timestamps are assigned when the batch is
// transformed, not when the driver sampled, so a slow driver's
// readings carry send time.
package payload
