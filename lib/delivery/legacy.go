// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/nettemp-agent/lib/payload"
)

// legacyReading is one element of the local server's request body.
type legacyReading struct {
	ROM   string  `json:"rom"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
	Name  string  `json:"name"`
	Group string  `json:"group"`
	Unit  string  `json:"unit,omitempty"`
}

// LegacySender posts the prefixed readings as a JSON array to the
// destination URL unchanged. This is the protocol of the self-hosted
// nettemp server that predates the cloud API.
type LegacySender struct {
	destination Destination
	client      *http.Client
	userAgent   string
}

// NewLegacySender returns a sender for destination.
func NewLegacySender(destination Destination, client *http.Client, userAgent string) *LegacySender {
	return &LegacySender{
		destination: destination.WithDefaults(),
		client:      client,
		userAgent:   userAgent,
	}
}

// Send performs one POST.
func (s *LegacySender) Send(ctx context.Context, p payload.Payload) Outcome {
	body, err := json.Marshal(legacyReadings(p))
	if err != nil {
		return Outcome{Kind: Failed, Err: fmt.Errorf("encoding readings: %w", err)}
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+s.destination.APIKey)
	headers.Set("Content-Type", "application/json")
	return post(ctx, s.client, s.destination.URL, body, headers, s.userAgent, s.destination)
}

func legacyReadings(p payload.Payload) []legacyReading {
	out := make([]legacyReading, 0, p.Len())
	for _, r := range p.Readings {
		out = append(out, legacyReading{
			ROM:   r.Metadata.OriginalROM,
			Type:  r.SensorType,
			Value: r.Value,
			Name:  r.Metadata.Name,
			Group: p.DeviceID,
			Unit:  r.Unit,
		})
	}
	return out
}
