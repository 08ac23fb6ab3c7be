// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/testutil"
)

func writeWithModTime(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatal(err)
	}
}

func TestChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drivers.yaml")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	writeWithModTime(t, path, "system: {}\n", base)

	watcher := New(path)
	if watcher.Changed() {
		t.Fatal("unchanged file reported as changed")
	}

	writeWithModTime(t, path, "system: {}\n", base.Add(time.Second))
	if !watcher.Changed() {
		t.Error("mtime change not detected")
	}
	if watcher.Changed() {
		t.Error("change reported twice")
	}

	// Same mtime, different size: a write within the filesystem's
	// timestamp granularity.
	writeWithModTime(t, path, "system: {enabled: true}\n", base.Add(time.Second))
	if !watcher.Changed() {
		t.Error("size change not detected")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !watcher.Changed() {
		t.Error("removal not detected")
	}
	writeWithModTime(t, path, "system: {}\n", base)
	if !watcher.Changed() {
		t.Error("recreation not detected")
	}
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	watcher := New(path)
	writeWithModTime(t, path, "group: a\n", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	watcher.Reset()
	if watcher.Changed() {
		t.Error("change reported after Reset")
	}
}

func TestRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drivers.yaml")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	writeWithModTime(t, path, "a: {}\n", base)

	fake := clock.Fake(base)
	watcher := New(path)
	changes := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		watcher.Run(ctx, fake, time.Second, func() { changes <- struct{}{} })
	}()

	fake.WaitForTimers(1)
	writeWithModTime(t, path, "a: {}\nb: {}\n", base.Add(time.Minute))
	fake.Advance(time.Second)
	testutil.RequireReceive(t, changes, 5*time.Second, "change notification")

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "Run exit")
}

func TestSameInstantIsUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drivers.yaml")
	modTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	writeWithModTime(t, path, "a: 1\n", modTime)

	watcher := New(path)
	watcher.mu.Lock()
	watcher.last.modTime = watcher.last.modTime.In(time.FixedZone("UTC+2", 2*60*60))
	watcher.mu.Unlock()

	if watcher.Changed() {
		t.Error("Changed() = true for the same instant in another zone")
	}
}
