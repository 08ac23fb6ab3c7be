// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs each enabled driver on its own interval and
// hands the readings to a [Sink].
//
// A job moves through Unscheduled, Scheduled, and Cancelled. When the
// job set is built, every enabled driver is invoked once before its
// ticker is installed; a failing first invocation is logged and the
// job is scheduled anyway. Each job has its own goroutine and ticker.
// Every tick starts the invocation on a fresh goroutine guarded by a
// per-driver try-lock, so a slow driver never stalls another and
// never runs twice at once: a tick that finds the previous invocation
// still running is skipped. The locks outlive job rebuilds.
//
// The driver settings file is polled for changes to its modification
// time or size. Any change cancels every job and rebuilds the set from
// the reloaded settings. The primary configuration file is polled on a
// coarser cadence; a change there makes [Scheduler.Run] return
// [ErrRestartRequested] so the process can re-exec itself. In-flight
// invocations are abandoned, not awaited.
package scheduler
