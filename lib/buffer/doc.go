// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buffer is the durable store-and-forward queue for payloads
// that could not be delivered.
//
// Each entry holds one CBOR-encoded payload, the name of the
// destination it failed to reach, the time it was enqueued, and the
// number of failed redelivery attempts. Entries are redelivered oldest
// first by (timestamp, id). An entry whose attempts reach
// [MaxAttempts] is exhausted: it is excluded from [Buffer.Pending]
// but stays in the table until an operator removes it, and is still
// visible through [Buffer.Entries].
//
// The schema is:
//
//	buffer(id INTEGER PRIMARY KEY AUTOINCREMENT, data BLOB,
//	       destination TEXT, timestamp INTEGER, attempts INTEGER DEFAULT 0)
//
// Concurrent writers (the send path enqueueing, the flush path
// deleting) are serialized by SQLite's busy timeout; see sqlitepool.
package buffer
