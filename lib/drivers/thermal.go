// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drivers

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bureau-foundation/nettemp-agent/lib/driver"
	"github.com/bureau-foundation/nettemp-agent/lib/hwinfo"
	"github.com/bureau-foundation/nettemp-agent/lib/reading"
)

// RPi reports the SoC temperature. The zone defaults to thermal_zone0
// and can be overridden with the "zone" setting.
type RPi struct {
	SysRoot string
}

// Name returns "rpi".
func (r *RPi) Name() string { return "rpi" }

// Read returns a single _raspberrypi temperature reading.
func (r *RPi) Read(ctx context.Context, config driver.Config) ([]reading.Reading, error) {
	zone := config.String("zone", "thermal_zone0")
	celsius, err := hwinfo.ThermalZoneCelsius(r.SysRoot, zone)
	if err != nil {
		return nil, err
	}
	return []reading.Reading{{
		ROM: "_raspberrypi", Type: "temp", Value: round(celsius, 1), Name: "raspberrypi", Unit: "°C",
	}}, nil
}

// W1Kernel reports every DS18B20 probe the w1_therm module exposes.
// Probes with a failed CRC are skipped for this cycle.
type W1Kernel struct {
	SysRoot string
}

// Name returns "w1_kernel".
func (w *W1Kernel) Name() string { return "w1_kernel" }

// Read returns one reading per probe with ROM "_28-<serial>".
func (w *W1Kernel) Read(ctx context.Context, config driver.Config) ([]reading.Reading, error) {
	devices := hwinfo.W1Devices(w.SysRoot)
	var readings []reading.Reading
	var errs []error
	for _, id := range devices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		celsius, err := hwinfo.ReadW1Celsius(w.SysRoot, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		readings = append(readings, reading.Reading{
			ROM: "_" + id, Type: "temp", Value: round(celsius, 2), Name: "DS18B20-" + id, Unit: "°C",
		})
	}
	if len(readings) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return readings, nil
}

// LMSensors reports every hwmon temperature input.
type LMSensors struct {
	SysRoot string
}

// Name returns "lm_sensors".
func (l *LMSensors) Name() string { return "lm_sensors" }

// Read returns one reading per input with ROM "_<chip>_<label>".
func (l *LMSensors) Read(ctx context.Context, config driver.Config) ([]reading.Reading, error) {
	var readings []reading.Reading
	for _, temperature := range hwinfo.HwmonTemperatures(l.SysRoot) {
		name := temperature.Chip + "_" + temperature.Label
		readings = append(readings, reading.Reading{
			ROM: "_" + name, Type: "temp", Value: round(temperature.Celsius, 1), Name: name, Unit: "°C",
		})
	}
	return readings, nil
}

func round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
