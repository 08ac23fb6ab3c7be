// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwinfo reads host measurements from procfs and sysfs: CPU
// utilization, memory usage, thermal zones, hwmon temperature inputs,
// and 1-Wire DS18B20 probes exposed by the w1_therm kernel module.
//
// Every reader takes the filesystem root it reads from so tests can
// point it at a synthetic tree under t.TempDir(). Production callers
// pass [ProcRoot] and [SysRoot].
package hwinfo

const (
	// ProcRoot is the procfs mount point.
	ProcRoot = "/proc"

	// SysRoot is the sysfs mount point.
	SysRoot = "/sys"
)
