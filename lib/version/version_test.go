// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	savedDirty, savedCommit := GitDirty, GitCommit
	t.Cleanup(func() { GitDirty, GitCommit = savedDirty, savedCommit })

	GitCommit = "abc1234"
	GitDirty = "true"
	if got := Info(); !strings.Contains(got, "abc1234-dirty") {
		t.Errorf("Info() = %q, want dirty marker", got)
	}

	GitDirty = "false"
	if got := Info(); strings.Contains(got, "-dirty") {
		t.Errorf("Info() = %q, want no dirty marker", got)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "nettemp-agent/"+Version {
		t.Errorf("UserAgent() = %q", got)
	}
}
