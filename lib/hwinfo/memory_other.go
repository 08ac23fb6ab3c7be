// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package hwinfo

import "errors"

// MemoryUsedPercent is only implemented on Linux.
func MemoryUsedPercent() (float64, error) {
	return 0, errors.New("memory usage is not available on this platform")
}
