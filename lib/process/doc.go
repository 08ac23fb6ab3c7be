// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. It centralizes
// the one raw I/O pattern that exists outside the structured logger:
// reporting a fatal error from run() to stderr, before the logger is
// configured or after it has been torn down, and exiting.
package process
