// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/nettemp-agent/lib/buffer"
	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/config"
	"github.com/bureau-foundation/nettemp-agent/lib/driver"
	"github.com/bureau-foundation/nettemp-agent/lib/payload"
	"github.com/bureau-foundation/nettemp-agent/lib/reading"
	"github.com/bureau-foundation/nettemp-agent/lib/restart"
	"github.com/bureau-foundation/nettemp-agent/lib/scheduler"
	"github.com/bureau-foundation/nettemp-agent/lib/testutil"
)

const waitTimeout = 5 * time.Second

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseFlags(t *testing.T) {
	t.Setenv("NETTEMP_CONFIG", "/etc/nettemp/config.conf")

	opts, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if opts.configPath != "/etc/nettemp/config.conf" || opts.logFormat != "json" {
		t.Errorf("defaults = %+v", opts)
	}

	opts, err = parseFlags([]string{"--config", "a.conf", "--drivers", "d.yaml", "--log-level", "debug", "--log-format", "text", "--list-drivers"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if opts.configPath != "a.conf" || opts.driversFile != "d.yaml" || opts.logLevel != "debug" || opts.logFormat != "text" || !opts.listDrivers {
		t.Errorf("parsed = %+v", opts)
	}

	if _, err := parseFlags([]string{"--log-format", "xml"}, io.Discard); err == nil {
		t.Error("bad --log-format accepted")
	}
	if _, err := parseFlags([]string{"stray"}, io.Discard); err == nil {
		t.Error("positional argument accepted")
	}
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]string{"": "INFO", "debug": "DEBUG", "WARN": "WARN", "error": "ERROR"} {
		level, err := parseLevel(name)
		if err != nil || level.String() != want {
			t.Errorf("parseLevel(%q) = %v, %v", name, level, err)
		}
	}
	if _, err := parseLevel("chatty"); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestRunVersion(t *testing.T) {
	var stdout bytes.Buffer
	if err := run([]string{"--version"}, &stdout, io.Discard); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout.String(), "nettemp-agent ") {
		t.Errorf("version output = %q", stdout.String())
	}
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	if err := run([]string{"--log-level", "loud", "--version=false"}, io.Discard, io.Discard); err == nil {
		t.Error("bad --log-level accepted")
	}
}

func TestRunListDrivers(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.conf")
	writeFile(t, configPath, "group: lab\n")
	writeFile(t, filepath.Join(dir, "drivers_config.yaml"), "system: {enabled: true, read_in_sec: 60}\nping: {enabled: false, read_in_sec: 60}\n")

	var stdout bytes.Buffer
	if err := run([]string{"--config", configPath, "--list-drivers"}, &stdout, io.Discard); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if !strings.HasPrefix(lines[0], "DRIVER") {
		t.Errorf("header = %q", lines[0])
	}
	found := make(map[string]string)
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		found[fields[0]] = strings.Join(fields[1:], " ")
	}
	if found["system"] != "enabled 1m0s" {
		t.Errorf("system = %q", found["system"])
	}
	if found["ping"] != "disabled -" {
		t.Errorf("ping = %q", found["ping"])
	}
}

func TestRunDumpBuffer(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.conf")
	writeFile(t, configPath, "buffer:\n  path: spool/buffer.db\n")

	store, err := buffer.Open(buffer.Config{Path: filepath.Join(dir, "spool", "buffer.db")})
	if err != nil {
		t.Fatal(err)
	}
	batch := payload.Payload{DeviceID: "lab", Readings: []payload.SensorReading{{SensorID: "lab_28-0001", SensorType: "temp", Value: 21.5}}}
	if _, err := store.Enqueue(context.Background(), "cloud", batch); err != nil {
		t.Fatal(err)
	}
	store.Close()

	var stdout bytes.Buffer
	if err := run([]string{"--config", configPath, "--dump-buffer"}, &stdout, io.Discard); err != nil {
		t.Fatal(err)
	}
	var dump bufferDump
	if err := json.Unmarshal(stdout.Bytes(), &dump); err != nil {
		t.Fatalf("output %q: %v", stdout.String(), err)
	}
	if dump.Destination != "cloud" || dump.Exhausted || len(dump.Payload.Readings) != 1 || dump.Payload.Readings[0].SensorID != "lab_28-0001" {
		t.Errorf("dump = %+v", dump)
	}
}

// collector records the readings count of every request it accepts.
func collector(t *testing.T) (*httptest.Server, chan payload.Payload) {
	t.Helper()
	received := make(chan payload.Payload, 16)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch payload.Payload
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- batch
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, received
}

func testAgent(t *testing.T, extraConfig string) (*agent, *config.Config) {
	t.Helper()
	server, _ := collector(t)
	return testAgentFor(t, server.URL, extraConfig)
}

func testAgentFor(t *testing.T, url, extraConfig string) (*agent, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.conf")
	writeFile(t, configPath, "group: lab\ndestinations:\n  - name: primary\n    url: "+url+"\n    api_key: key\n"+extraConfig)
	writeFile(t, filepath.Join(dir, "drivers_config.yaml"), "probe: {enabled: true, read_in_sec: 3600}\n")

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	registry := driver.NewRegistry(testutil.DiscardLogger())
	registry.Register(driver.Func{
		DriverName: "probe",
		ReadFunc: func(context.Context, driver.Config) ([]reading.Reading, error) {
			return []reading.Reading{{ROM: "_28-0001", Type: "temp", Value: 21.5, Name: "probe"}}, nil
		},
	})
	a, err := newAgent(cfg, agentDeps{Clock: clock.Real(), Logger: testutil.DiscardLogger(), Registry: registry})
	if err != nil {
		t.Fatal(err)
	}
	return a, cfg
}

func TestAgentDeliversAndStops(t *testing.T) {
	server, received := collector(t)
	a, _ := testAgentFor(t, server.URL, "")
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- a.Run(ctx) }()

	batch := testutil.RequireReceive(t, received, waitTimeout, "first invocation delivered")
	if batch.DeviceID != "lab" || len(batch.Readings) != 1 || batch.Readings[0].SensorID != "lab-28-0001" {
		t.Errorf("batch = %+v", batch)
	}

	cancel()
	if err := testutil.RequireReceive(t, result, waitTimeout, "agent stopping"); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

func TestAgentRequestsRestartOnConfigChange(t *testing.T) {
	a, cfg := testAgent(t, "watch:\n  config_interval: 20ms\n")
	defer a.Close()

	result := make(chan error, 1)
	go func() { result <- a.Run(context.Background()) }()

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(cfg.Path(), future, future); err != nil {
		t.Fatal(err)
	}
	err := testutil.RequireReceive(t, result, waitTimeout, "agent returning")
	if !errors.Is(err, scheduler.ErrRestartRequested) {
		t.Errorf("Run() = %v, want ErrRestartRequested", err)
	}
}

func TestDeliverAfterCloseIsDropped(t *testing.T) {
	server, received := collector(t)
	a, _ := testAgentFor(t, server.URL, "")
	a.Close()

	readings := []reading.Reading{{ROM: "_28-0001", Type: "temp", Value: 21.5, Name: "probe"}}
	a.deliver(context.Background(), "probe", readings)
	a.Close()

	testutil.RequireNoReceive(t, received, 100*time.Millisecond, "delivery after Close")
}

func TestRestartProcessWritesMarker(t *testing.T) {
	markerPath := filepath.Join(t.TempDir(), "restart.json")
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	called := false
	previous := reexec
	reexec = func() error { called = true; return errors.New("exec blocked in test") }
	t.Cleanup(func() { reexec = previous })

	err := restartProcess(markerPath, clock.Fake(start), testutil.DiscardLogger())
	if err == nil || !called {
		t.Fatalf("restartProcess() = %v, called = %v", err, called)
	}
	marker, err := restart.Read(markerPath)
	if err != nil {
		t.Fatal(err)
	}
	if marker.Reason != restartReason || !marker.Timestamp.Equal(start) || marker.Executable == "" {
		t.Errorf("marker = %+v", marker)
	}
}

func TestCheckRestartMarker(t *testing.T) {
	markerPath := filepath.Join(t.TempDir(), "restart.json")
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := restart.Write(markerPath, restart.Marker{Reason: restartReason, Timestamp: start}); err != nil {
		t.Fatal(err)
	}

	logger, logs := testutil.CaptureLogger()
	checkRestartMarker(markerPath, clock.Fake(start.Add(10*time.Second)), logger)

	if !strings.Contains(logs.String(), "restarted after configuration changed") {
		t.Errorf("restart not logged:\n%s", logs.String())
	}
	if _, err := os.Stat(markerPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("marker not cleared: %v", err)
	}
}
