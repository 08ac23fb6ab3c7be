// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"strings"
	"testing"
	"time"
)

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}
}

func TestRequireClosed(t *testing.T) {
	ch := make(chan struct{})
	close(ch)
	RequireClosed(t, ch, time.Second, "closed channel")
}

func TestFormatMessage(t *testing.T) {
	if got := formatMessage(nil); got != "(no message)" {
		t.Errorf("formatMessage(nil) = %q", got)
	}
	if got := formatMessage([]any{"waiting for %s", "flush"}); got != "waiting for flush" {
		t.Errorf("formatMessage(format) = %q", got)
	}
}

func TestCaptureLogger(t *testing.T) {
	logger, logs := CaptureLogger()
	logger.Debug("flush skipped", "destination", "cloud")
	if !strings.Contains(logs.String(), "destination=cloud") {
		t.Errorf("captured logs = %q", logs.String())
	}
}

func TestRequireNoReceive(t *testing.T) {
	RequireNoReceive(t, make(chan int), 10*time.Millisecond, "idle channel")
}

func TestRequireSend(t *testing.T) {
	ch := make(chan string, 1)
	RequireSend(t, ch, "tick", time.Second, "buffered send")
	if got := <-ch; got != "tick" {
		t.Errorf("received %q", got)
	}
}
