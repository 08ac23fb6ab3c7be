// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrCRC is returned when a w1_slave file reports a failed CRC check.
var ErrCRC = errors.New("w1 CRC check failed")

// ReadSysfsString reads a sysfs attribute and trims whitespace.
// Returns "" on error.
func ReadSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ReadMillidegrees reads a sysfs temperature attribute (an integer in
// thousandths of a degree Celsius) and returns degrees Celsius.
func ReadMillidegrees(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	return float64(value) / 1000, nil
}

// ThermalZoneCelsius reads <sysRoot>/class/thermal/<zone>/temp.
func ThermalZoneCelsius(sysRoot, zone string) (float64, error) {
	return ReadMillidegrees(filepath.Join(sysRoot, "class", "thermal", zone, "temp"))
}

// HwmonTemperature is one temp*_input attribute of an hwmon chip.
type HwmonTemperature struct {
	Chip    string
	Label   string
	Celsius float64
}

// HwmonTemperatures enumerates every readable temp*_input under
// <sysRoot>/class/hwmon. The chip name comes from the hwmon "name"
// attribute (falling back to the hwmonN directory name); the label
// comes from temp*_label (falling back to "tempN"). Unreadable inputs
// are skipped. Results are ordered by hwmon directory then input.
func HwmonTemperatures(sysRoot string) []HwmonTemperature {
	base := filepath.Join(sysRoot, "class", "hwmon")
	chips, err := os.ReadDir(base)
	if err != nil {
		return nil
	}

	var temperatures []HwmonTemperature
	for _, chip := range chips {
		chipPath := filepath.Join(base, chip.Name())
		chipName := ReadSysfsString(filepath.Join(chipPath, "name"))
		if chipName == "" {
			chipName = chip.Name()
		}

		inputs, _ := filepath.Glob(filepath.Join(chipPath, "temp*_input"))
		sort.Strings(inputs)
		for _, input := range inputs {
			celsius, err := ReadMillidegrees(input)
			if err != nil {
				continue
			}
			sensor := strings.TrimSuffix(filepath.Base(input), "_input")
			label := ReadSysfsString(filepath.Join(chipPath, sensor+"_label"))
			if label == "" {
				label = sensor
			}
			temperatures = append(temperatures, HwmonTemperature{
				Chip:    chipName,
				Label:   label,
				Celsius: celsius,
			})
		}
	}
	return temperatures
}

// W1Devices returns the ids of DS18B20 probes (family 28) under
// <sysRoot>/bus/w1/devices, sorted.
func W1Devices(sysRoot string) []string {
	matches, _ := filepath.Glob(filepath.Join(sysRoot, "bus", "w1", "devices", "28-*"))
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, filepath.Base(match))
	}
	sort.Strings(ids)
	return ids
}

// ReadW1Celsius reads the w1_slave attribute of the given probe.
func ReadW1Celsius(sysRoot, id string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(sysRoot, "bus", "w1", "devices", id, "w1_slave"))
	if err != nil {
		return 0, err
	}
	return ParseW1Slave(string(data))
}

// ParseW1Slave parses the two-line w1_therm output:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
//
// The first line must end in YES; the second carries the temperature
// in millidegrees after "t=".
func ParseW1Slave(content string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("w1_slave: expected 2 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrCRC
	}
	index := strings.LastIndex(lines[1], "t=")
	if index < 0 {
		return 0, errors.New("w1_slave: no t= field")
	}
	value, err := strconv.ParseInt(strings.TrimSpace(lines[1][index+2:]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("w1_slave: %w", err)
	}
	return float64(value) / 1000, nil
}
