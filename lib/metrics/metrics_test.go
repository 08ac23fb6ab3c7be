// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DriverRun("system", nil, time.Second, 2)
	m.DriverSkipped("system")
	m.SetScheduledJobs(3)
	m.DeliveryRequest("cloud", "ok")
	m.ReadingsDelivered("cloud", 1)
	m.ReadingsBuffered("cloud", 1)
	m.FlushEntry("cloud", "delivered")
	m.SetBufferDepth(1, 2)
	m.MQTTPublish(nil)
	if m.Registry() != nil {
		t.Error("nil Metrics should have nil registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.DriverRun("system", nil, 10*time.Millisecond, 2)
	m.DriverRun("system", errors.New("boom"), 10*time.Millisecond, 0)
	m.DriverSkipped("system")
	if got := testutil.ToFloat64(m.driverRuns.WithLabelValues("system", "ok")); got != 1 {
		t.Errorf("ok runs = %v", got)
	}
	if got := testutil.ToFloat64(m.driverRuns.WithLabelValues("system", "error")); got != 1 {
		t.Errorf("error runs = %v", got)
	}
	if got := testutil.ToFloat64(m.driverRuns.WithLabelValues("system", "skipped")); got != 1 {
		t.Errorf("skipped runs = %v", got)
	}
	if got := testutil.ToFloat64(m.driverReadings.WithLabelValues("system")); got != 2 {
		t.Errorf("driver readings = %v", got)
	}

	m.ReadingsDelivered("cloud", 100)
	m.ReadingsDelivered("cloud", 50)
	if got := testutil.ToFloat64(m.readingsDelivered.WithLabelValues("cloud")); got != 150 {
		t.Errorf("delivered = %v", got)
	}

	m.SetBufferDepth(7, 1)
	if got := testutil.ToFloat64(m.bufferDepth.WithLabelValues("pending")); got != 7 {
		t.Errorf("pending depth = %v", got)
	}
	if got := testutil.ToFloat64(m.bufferDepth.WithLabelValues("exhausted")); got != 1 {
		t.Errorf("exhausted depth = %v", got)
	}
}

func TestServe(t *testing.T) {
	m := New()
	m.DeliveryRequest("cloud", "unauthorized")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveListener(ctx, m, listener, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	response, err := http.Get("http://" + listener.Addr().String() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if !strings.Contains(string(body), `nettemp_delivery_requests_total{destination="cloud",outcome="unauthorized"} 1`) {
		t.Errorf("metrics output missing delivery counter:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
