// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MemoryUsedPercent returns the share of physical memory in use, as
// reported by sysinfo(2).
func MemoryUsedPercent() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	return memoryPercent(uint64(info.Totalram), uint64(info.Freeram), uint64(info.Unit))
}

func memoryPercent(total, free, unit uint64) (float64, error) {
	if unit == 0 {
		unit = 1
	}
	totalBytes := total * unit
	freeBytes := free * unit
	if totalBytes == 0 || totalBytes < freeBytes {
		return 0, fmt.Errorf("sysinfo reported total=%d free=%d", totalBytes, freeBytes)
	}
	return float64(totalBytes-freeBytes) / float64(totalBytes) * 100, nil
}
