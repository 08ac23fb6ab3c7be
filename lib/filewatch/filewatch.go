// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package filewatch detects changes to a single file by polling its
// modification time and size.
//
// A file that disappears or reappears counts as changed. Editors that
// save by renaming a new file over the old one are detected through
// the new file's mtime.
package filewatch

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
)

// snapshot is what the watcher compares between polls.
type snapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (s snapshot) equal(other snapshot) bool {
	return s.exists == other.exists && s.size == other.size && s.modTime.Equal(other.modTime)
}

func stat(path string) snapshot {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}
	}
	return snapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// Watcher polls one path. Safe for concurrent use.
type Watcher struct {
	path string

	mu   sync.Mutex
	last snapshot
}

// New records the current state of path as the baseline.
func New(path string) *Watcher {
	return &Watcher{path: path, last: stat(path)}
}

// Path returns the watched path.
func (w *Watcher) Path() string { return w.path }

// Changed stats the file and reports whether it differs from the
// previous poll. The new state becomes the baseline.
func (w *Watcher) Changed() bool {
	current := stat(w.path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if current.equal(w.last) {
		return false
	}
	w.last = current
	return true
}

// Reset makes the file's current state the baseline without
// reporting a change.
func (w *Watcher) Reset() {
	current := stat(w.path)
	w.mu.Lock()
	w.last = current
	w.mu.Unlock()
}

// Run polls every interval and calls onChange after each detected
// change, until ctx is done. onChange runs on Run's goroutine; polls
// do not overlap with it.
func (w *Watcher) Run(ctx context.Context, clk clock.Clock, interval time.Duration, onChange func()) {
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.Changed() {
				onChange()
			}
		}
	}
}
