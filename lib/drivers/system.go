// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drivers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/driver"
	"github.com/bureau-foundation/nettemp-agent/lib/hwinfo"
	"github.com/bureau-foundation/nettemp-agent/lib/reading"
)

// DefaultSampleWindow is how long the system driver waits between its
// two /proc/stat samples on the first invocation. Later invocations
// measure against the previous invocation's sample.
const DefaultSampleWindow = 500 * time.Millisecond

// System reports CPU and memory utilization in percent.
type System struct {
	ProcRoot     string
	Clock        clock.Clock
	SampleWindow time.Duration
	Memory       func() (float64, error)

	mu       sync.Mutex
	previous *hwinfo.CPUReading
}

// NewSystem returns a System driver reading from options' roots.
func NewSystem(options Options) *System {
	options = options.withDefaults()
	return &System{
		ProcRoot:     options.ProcRoot,
		Clock:        options.Clock,
		SampleWindow: DefaultSampleWindow,
		Memory:       hwinfo.MemoryUsedPercent,
	}
}

// Name returns "system".
func (s *System) Name() string { return "system" }

// Read returns up to two readings: _system_cpu and _system_mem. A
// failing source is omitted; the driver fails only when both do.
func (s *System) Read(ctx context.Context, config driver.Config) ([]reading.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var readings []reading.Reading
	var errs []error

	cpu, err := s.cpuPercent(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		readings = append(readings, reading.Reading{
			ROM: "_system_cpu", Type: "system", Value: round(cpu, 1), Name: "CPU", Unit: "%",
		})
	}

	memory, err := s.Memory()
	if err != nil {
		errs = append(errs, err)
	} else {
		readings = append(readings, reading.Reading{
			ROM: "_system_mem", Type: "system", Value: round(memory, 1), Name: "Memory", Unit: "%",
		})
	}

	if len(readings) == 0 {
		return nil, errors.Join(errs...)
	}
	return readings, nil
}

func (s *System) cpuPercent(ctx context.Context) (float64, error) {
	if s.previous == nil {
		s.previous = hwinfo.ReadCPUStats(s.ProcRoot)
		if s.previous == nil {
			return 0, errors.New("reading cpu counters")
		}
		if s.SampleWindow > 0 {
			select {
			case <-s.Clock.After(s.SampleWindow):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}
	current := hwinfo.ReadCPUStats(s.ProcRoot)
	if current == nil {
		return 0, errors.New("reading cpu counters")
	}
	percent := hwinfo.CPUPercent(s.previous, current)
	s.previous = current
	return percent, nil
}
