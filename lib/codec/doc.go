// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the agent's CBOR encoding, used for payloads held
// in the offline buffer. Encoding is RFC 8949 Core Deterministic, so
// the same payload always produces the same bytes. Decoding ignores
// unknown fields, which lets an upgraded agent replay entries written
// by an older one.
package codec
