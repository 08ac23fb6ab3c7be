// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"fmt"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/reading"
)

// ReadingError reports a reading dropped from a batch.
type ReadingError struct {
	Index int
	ROM   string
	Err   error
}

func (e *ReadingError) Error() string {
	return fmt.Sprintf("reading %d (rom %q): %v", e.Index, e.ROM, e.Err)
}

func (e *ReadingError) Unwrap() error { return e.Err }

// Transformer builds Payloads for one device identity.
type Transformer struct {
	deviceID string
	clock    clock.Clock
}

// NewTransformer returns a Transformer stamping readings with clk.
func NewTransformer(deviceID string, clk clock.Clock) *Transformer {
	return &Transformer{deviceID: deviceID, clock: clk}
}

// DeviceID returns the identity the transformer prefixes with.
func (t *Transformer) DeviceID() string { return t.deviceID }

// Transform converts readings into one Payload. A reading whose value
// cannot be coerced to a float is left out and reported in the
// returned slice; the rest of the batch is unaffected.
func (t *Transformer) Transform(readings []reading.Reading) (Payload, []*ReadingError) {
	now := t.clock.Now().Unix()
	result := Payload{
		DeviceID: t.deviceID,
		Readings: make([]SensorReading, 0, len(readings)),
	}

	var dropped []*ReadingError
	for i, r := range readings {
		value, err := r.Float()
		if err != nil {
			dropped = append(dropped, &ReadingError{Index: i, ROM: r.ROM, Err: err})
			continue
		}
		rom := Prefix(r.ROM, t.deviceID)
		result.Readings = append(result.Readings, SensorReading{
			SensorID:   SensorID(rom, t.deviceID),
			SensorType: r.Type,
			Value:      value,
			Unit:       r.Unit,
			Timestamp:  now,
			Metadata: Metadata{
				Name:        r.Name,
				OriginalROM: rom,
			},
		})
	}
	return result, dropped
}
