// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock reads and waits so that the
// agent's timing behavior (driver intervals, retry backoff, file
// polling, buffer flush cadence) can be driven deterministically in
// tests.
//
// Production code takes a [Clock] and is handed [Real]. Tests hand it
// a [FakeClock] from [Fake] and move time forward explicitly with
// [FakeClock.Advance]. [FakeClock.WaitForTimers] closes the race
// between a goroutine registering a wait and the test advancing past
// it.
package clock
