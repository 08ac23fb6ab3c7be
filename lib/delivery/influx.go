// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"errors"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/bureau-foundation/nettemp-agent/lib/payload"
)

// Measurement is the InfluxDB measurement every reading is written to.
const Measurement = "sensor_reading"

// InfluxSender writes each reading as a point through the blocking
// write API.
type InfluxSender struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSender returns a sender for an influx destination. The
// destination's APIKey is the InfluxDB token. Close releases the
// client.
func NewInfluxSender(destination Destination) *InfluxSender {
	destination = destination.WithDefaults()
	seconds := uint(destination.Timeout / time.Second)
	if seconds == 0 {
		seconds = 1
	}
	options := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(seconds).
		SetUseGZip(destination.Gzip)
	client := influxdb2.NewClientWithOptions(destination.URL, destination.APIKey, options)
	return &InfluxSender{
		client:   client,
		writeAPI: client.WriteAPIBlocking(destination.Org, destination.Bucket),
	}
}

// Send writes every reading in p.
func (s *InfluxSender) Send(ctx context.Context, p payload.Payload) Outcome {
	points := make([]*write.Point, 0, p.Len())
	for _, r := range p.Readings {
		point := influxdb2.NewPointWithMeasurement(Measurement).
			AddTag("device_id", p.DeviceID).
			AddTag("sensor_id", r.SensorID).
			AddTag("sensor_type", r.SensorType).
			AddTag("name", r.Metadata.Name).
			AddField("value", r.Value).
			SetTime(time.Unix(r.Timestamp, 0))
		if r.Unit != "" {
			point.AddTag("unit", r.Unit)
		}
		points = append(points, point)
	}

	err := s.writeAPI.WritePoint(ctx, points...)
	if err == nil {
		return Outcome{Kind: Delivered}
	}

	var httpErr *influxhttp.Error
	if errors.As(err, &httpErr) && httpErr.StatusCode != 0 {
		outcome := statusOutcome(httpErr.StatusCode, httpErr.Message)
		outcome.Err = err
		if outcome.Kind == Delivered {
			outcome.Kind = Failed
		}
		return outcome
	}
	return transportOutcome(ctx, err)
}

// Close releases the underlying client.
func (s *InfluxSender) Close() {
	s.client.Close()
}
