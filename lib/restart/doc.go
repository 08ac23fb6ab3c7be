// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package restart replaces the running agent with a fresh copy of
// itself and records why it did so.
//
// The flow when the primary configuration changes:
//
//  1. Write a [Marker] naming the reason and the executable.
//  2. Close every resource the agent holds (buffer, clients).
//  3. Call [Exec], which execve()s the same binary with the same
//     arguments and environment. The process id is preserved, so a
//     supervisor sees no exit.
//  4. The new process calls [Check] on startup, logs the restart if
//     the marker is recent, and calls [Clear].
//
// The marker is written atomically (temporary file, fsync, rename,
// fsync of the parent directory). Check ignores markers older than a
// maximum age so a marker left behind by a crashed exec does not
// resurface days later.
package restart
