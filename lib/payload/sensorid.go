// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// longIdentifierLength is the remainder length above which an
// unrecognized identifier is replaced by a hash.
const longIdentifierLength = 20

// defaultDHTVariant names a DHT sensor whose rom carries no model number.
const defaultDHTVariant = "dht11"

var (
	dhtVariantPattern = regexp.MustCompile(`dht\d*`)
	dhtPinPattern     = regexp.MustCompile(`(?:^|[_-])D(\d+)(?:$|[_-])`)
	i2cAddressPattern = regexp.MustCompile(`^(?:0[xX])?[0-9a-fA-F]{1,4}$`)
	driverNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{2,}$`)
)

// Prefix prepends deviceID to rom exactly once. A rom that already
// starts with deviceID is returned unchanged, so Prefix is idempotent.
// Leading underscores are dropped before joining to avoid "group__x".
func Prefix(rom, deviceID string) string {
	if deviceID == "" || strings.HasPrefix(rom, deviceID) {
		return rom
	}
	return deviceID + "_" + strings.TrimLeft(rom, "_")
}

// SensorID infers a stable sensor identifier from a legacy rom.
//
// A leading deviceID is stripped (and remembered as the group), then
// leading underscores. The remainder is classified, first match wins:
//
//  1. "28-..."                     1-Wire: the remainder itself
//  2. "dht" and a D<pin> token     "<dht-variant>-gpio<pin>" (bare "dht" is dht11)
//  3. "i2c" then an address token  "[<driver>-]i2c-0x<addr>"
//  4. longer than 20 characters    "sensor-<md5[:8]>"
//  5. otherwise                    the remainder, or "unknown"
//
// When a group was stripped the result is "<group>-<id>".
//
// Identifiers matching several rules (both "dht" and "i2c") resolve by
// this order.
func SensorID(rom, deviceID string) string {
	remainder := rom
	group := ""
	if deviceID != "" && strings.HasPrefix(remainder, deviceID) {
		remainder = remainder[len(deviceID):]
		group = deviceID
	}
	remainder = strings.TrimLeft(remainder, "_")

	id := classify(remainder)
	if group != "" {
		return group + "-" + id
	}
	return id
}

func classify(remainder string) string {
	if strings.HasPrefix(remainder, "28-") {
		return remainder
	}
	if id, ok := dhtID(remainder); ok {
		return id
	}
	if id, ok := i2cID(remainder); ok {
		return id
	}
	if len(remainder) > longIdentifierLength {
		sum := md5.Sum([]byte(remainder))
		return "sensor-" + hex.EncodeToString(sum[:])[:8]
	}
	if remainder == "" {
		return "unknown"
	}
	return remainder
}

func dhtID(remainder string) (string, bool) {
	lower := strings.ToLower(remainder)
	if !strings.Contains(lower, "dht") {
		return "", false
	}
	pin := dhtPinPattern.FindStringSubmatch(remainder)
	if pin == nil {
		return "", false
	}
	variant := dhtVariantPattern.FindString(lower)
	if variant == "dht" {
		variant = defaultDHTVariant
	}
	return variant + "-gpio" + pin[1], true
}

func i2cID(remainder string) (string, bool) {
	tokens := strings.Split(remainder, "_")
	for i, token := range tokens {
		if !strings.EqualFold(token, "i2c") || i+1 >= len(tokens) {
			continue
		}
		address := tokens[i+1]
		if !i2cAddressPattern.MatchString(address) {
			continue
		}
		address = strings.ToLower(address)
		address = strings.TrimPrefix(address, "0x")
		id := "i2c-0x" + address
		if i > 0 && driverNamePattern.MatchString(tokens[i-1]) {
			id = strings.ToLower(tokens[i-1]) + "-" + id
		}
		return id, true
	}
	return "", false
}
