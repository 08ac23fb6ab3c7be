// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery sends payloads to the configured destinations and
// keeps what could not be sent in the offline buffer.
//
// For each usable destination a payload is split into sub-batches of
// the destination's batch size and each sub-batch is delivered with a
// bounded retry policy of at most three requests:
//
//   - 2xx: delivered.
//   - 401: abandoned at once; the API key is wrong and retrying cannot
//     help. The sub-batch is still buffered so it can be redelivered
//     after the key is fixed.
//   - 429: wait 2^attempt seconds, then retry.
//   - timeout: retry once after one second.
//   - anything else: buffered without further retry.
//
// Buffered sub-batches are tagged with the destination that failed.
// [Manager.Flush] redelivers them oldest first, deleting on success
// and counting failed attempts; see package buffer for the attempt
// ceiling.
//
// Three destination kinds exist: "http" posts the JSON payload to
// {url}/api/v1/data, "legacy" posts the raw prefixed readings to the
// URL as given (the pre-cloud local server protocol), and "influx"
// writes one point per reading through the InfluxDB v2 write API.
package delivery
