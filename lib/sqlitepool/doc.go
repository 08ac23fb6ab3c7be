// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens zombiezen.com/go/sqlite connection pools
// with the agent's standard pragmas.
//
// Every connection is prepared with:
//
//   - journal_mode=WAL: readers never block the writer, so the flush
//     pass can scan the buffer while a failed send is enqueued.
//   - synchronous=NORMAL: committed transactions survive a process
//     crash or a re-exec. Power loss may drop the last commits.
//   - busy_timeout: a writer that finds the database locked retries
//     with backoff inside SQLite for up to [Config.BusyTimeout]
//     (default 5s) before failing with SQLITE_BUSY. This bounded wait
//     is what serializes the enqueue and flush paths; no in-process
//     mutex is needed for correctness.
//   - temp_store=MEMORY.
//
// Callers [Pool.Take] a connection, use it from a single goroutine,
// and [Pool.Put] it back. Transactions use
// sqlitex.ImmediateTransaction so the write lock is taken up front and
// contention surfaces as a busy wait rather than a mid-transaction
// upgrade failure.
package sqlitepool
