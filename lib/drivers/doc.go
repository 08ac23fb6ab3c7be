// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package drivers holds the measurement drivers built into the agent:
//
//   - system: CPU and memory utilization
//   - rpi: SoC temperature from thermal_zone0
//   - w1_kernel: DS18B20 probes via the w1_therm kernel module
//   - lm_sensors: every hwmon temperature input
//   - ping: HTTP round-trip time for URLs, TCP connect time for hosts
//
// Drivers that need hardware buses (DHT, I2C) are registered by the
// deployments that have them. Each driver emits ROMs starting with an
// underscore; the payload transformer prefixes them with the device id.
package drivers
