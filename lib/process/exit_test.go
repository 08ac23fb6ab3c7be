// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"testing"
)

func TestReport(t *testing.T) {
	var out bytes.Buffer
	Report(&out, errors.New("opening buffer: disk full"))
	if got, want := out.String(), "error: opening buffer: disk full\n"; got != want {
		t.Errorf("Report() wrote %q, want %q", got, want)
	}
}
