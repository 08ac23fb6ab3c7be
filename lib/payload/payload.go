// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payload

// Payload is one batch ready for the wire:
//
//	{"device_id": "...", "readings": [{"sensor_id": ..., "metadata": {...}}]}
//
// The same struct is CBOR-encoded into the offline buffer (the CBOR
// encoder honors the json tags).
type Payload struct {
	DeviceID string          `json:"device_id"`
	Readings []SensorReading `json:"readings"`
}

// SensorReading is one normalized reading inside a Payload.
type SensorReading struct {
	SensorID   string   `json:"sensor_id"`
	SensorType string   `json:"sensor_type"`
	Value      float64  `json:"value"`
	Unit       string   `json:"unit"`
	Timestamp  int64    `json:"timestamp"`
	Metadata   Metadata `json:"metadata"`
}

// Metadata preserves the legacy identity of a reading.
type Metadata struct {
	Name        string `json:"name"`
	OriginalROM string `json:"original_rom"`
}

// Len returns the number of readings in the batch.
func (p Payload) Len() int { return len(p.Readings) }

// Split chunks p into consecutive sub-batches of at most size
// readings, each carrying p's device id. A non-positive size returns p
// unsplit; an empty payload returns no batches.
func Split(p Payload, size int) []Payload {
	if len(p.Readings) == 0 {
		return nil
	}
	if size <= 0 || len(p.Readings) <= size {
		return []Payload{p}
	}
	batches := make([]Payload, 0, (len(p.Readings)+size-1)/size)
	for start := 0; start < len(p.Readings); start += size {
		end := min(start+size, len(p.Readings))
		batches = append(batches, Payload{
			DeviceID: p.DeviceID,
			Readings: p.Readings[start:end:end],
		})
	}
	return batches
}
