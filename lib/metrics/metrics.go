// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "nettemp"

// Metrics holds every instrument on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	driverRuns        *prometheus.CounterVec
	driverDuration    *prometheus.HistogramVec
	driverReadings    *prometheus.CounterVec
	scheduledJobs     prometheus.Gauge
	deliveryRequests  *prometheus.CounterVec
	readingsDelivered *prometheus.CounterVec
	readingsBuffered  *prometheus.CounterVec
	flushEntries      *prometheus.CounterVec
	bufferDepth       *prometheus.GaugeVec
	mqttPublishes     *prometheus.CounterVec
}

// New creates the instruments and registers them, along with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		driverRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_runs_total",
			Help:      "Driver invocations by driver and result.",
		}, []string{"driver", "result"}),
		driverDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "driver_duration_seconds",
			Help:      "Wall time of driver invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"driver"}),
		driverReadings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_readings_total",
			Help:      "Readings produced by drivers.",
		}, []string{"driver"}),
		scheduledJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduled_jobs",
			Help:      "Driver jobs currently scheduled.",
		}),
		deliveryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_requests_total",
			Help:      "Delivery requests by destination and outcome.",
		}, []string{"destination", "outcome"}),
		readingsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_delivered_total",
			Help:      "Readings accepted by a destination.",
		}, []string{"destination"}),
		readingsBuffered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_buffered_total",
			Help:      "Readings written to the offline buffer after a failed delivery.",
		}, []string{"destination"}),
		flushEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_entries_total",
			Help:      "Buffered entries processed by flush passes, by destination and result.",
		}, []string{"destination", "result"}),
		bufferDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_entries",
			Help:      "Entries in the offline buffer by state.",
		}, []string{"state"}),
		mqttPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publishes_total",
			Help:      "MQTT publishes by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.driverRuns,
		m.driverDuration,
		m.driverReadings,
		m.scheduledJobs,
		m.deliveryRequests,
		m.readingsDelivered,
		m.readingsBuffered,
		m.flushEntries,
		m.bufferDepth,
		m.mqttPublishes,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// DriverRun records one driver invocation.
func (m *Metrics) DriverRun(driver string, err error, duration time.Duration, readings int) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.driverRuns.WithLabelValues(driver, result).Inc()
	m.driverDuration.WithLabelValues(driver).Observe(duration.Seconds())
	m.driverReadings.WithLabelValues(driver).Add(float64(readings))
}

// DriverSkipped records a tick dropped because the previous invocation
// of the driver was still running.
func (m *Metrics) DriverSkipped(driver string) {
	if m == nil {
		return
	}
	m.driverRuns.WithLabelValues(driver, "skipped").Inc()
}

// SetScheduledJobs records the number of scheduled jobs.
func (m *Metrics) SetScheduledJobs(n int) {
	if m == nil {
		return
	}
	m.scheduledJobs.Set(float64(n))
}

// DeliveryRequest records one HTTP (or influx) request outcome.
func (m *Metrics) DeliveryRequest(destination, outcome string) {
	if m == nil {
		return
	}
	m.deliveryRequests.WithLabelValues(destination, outcome).Inc()
}

// ReadingsDelivered records readings accepted by a destination.
func (m *Metrics) ReadingsDelivered(destination string, n int) {
	if m == nil {
		return
	}
	m.readingsDelivered.WithLabelValues(destination).Add(float64(n))
}

// ReadingsBuffered records readings written to the buffer.
func (m *Metrics) ReadingsBuffered(destination string, n int) {
	if m == nil {
		return
	}
	m.readingsBuffered.WithLabelValues(destination).Add(float64(n))
}

// FlushEntry records one buffered entry processed by a flush pass.
// result is "delivered" or "failed".
func (m *Metrics) FlushEntry(destination, result string) {
	if m == nil {
		return
	}
	m.flushEntries.WithLabelValues(destination, result).Inc()
}

// SetBufferDepth records the pending and exhausted entry counts.
func (m *Metrics) SetBufferDepth(pending, exhausted int) {
	if m == nil {
		return
	}
	m.bufferDepth.WithLabelValues("pending").Set(float64(pending))
	m.bufferDepth.WithLabelValues("exhausted").Set(float64(exhausted))
}

// MQTTPublish records one MQTT publish attempt.
func (m *Metrics) MQTTPublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.mqttPublishes.WithLabelValues(result).Inc()
}
