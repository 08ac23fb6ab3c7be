// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/driver"
	"github.com/bureau-foundation/nettemp-agent/lib/reading"
	"github.com/bureau-foundation/nettemp-agent/lib/testutil"
)

const waitTimeout = 5 * time.Second

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type delivery struct {
	driver   string
	readings []reading.Reading
}

// channelSink forwards every delivery to a buffered channel.
type channelSink chan delivery

func (c channelSink) Deliver(_ context.Context, driver string, readings []reading.Reading) {
	c <- delivery{driver: driver, readings: readings}
}

func constant(name string, value float64) driver.Func {
	return driver.Func{
		DriverName: name,
		ReadFunc: func(context.Context, driver.Config) ([]reading.Reading, error) {
			return []reading.Reading{{ROM: "_" + name, Type: "temp", Value: value, Name: name}}, nil
		},
	}
}

func writeSettings(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatal(err)
	}
}

type harness struct {
	scheduler *Scheduler
	clock     *clock.FakeClock
	sink      channelSink
	settings  string
	config    string
}

func newHarness(t *testing.T, settings string, drivers ...driver.Driver) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		clock:    clock.Fake(epoch),
		sink:     make(channelSink, 64),
		settings: filepath.Join(dir, "drivers.yaml"),
		config:   filepath.Join(dir, "nettemp.yaml"),
	}
	writeSettings(t, h.settings, settings, epoch)
	writeSettings(t, h.config, "group: lab\n", epoch)

	registry := driver.NewRegistry(testutil.DiscardLogger())
	for _, d := range drivers {
		registry.Register(d)
	}
	s, err := New(Config{
		Registry:     registry,
		SettingsPath: h.settings,
		ConfigPath:   h.config,
		Sink:         h.sink,
		Clock:        h.clock,
		Logger:       testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	h.scheduler = s
	return h
}

// drain returns the deliveries already queued, without blocking.
func (h *harness) drain() map[string]int {
	counts := make(map[string]int)
	for {
		select {
		case d := <-h.sink:
			counts[d.driver]++
		default:
			return counts
		}
	}
}

func (h *harness) jobDone() []chan struct{} {
	h.scheduler.mu.Lock()
	defer h.scheduler.mu.Unlock()
	var done []chan struct{}
	for _, j := range h.scheduler.jobs {
		done = append(done, j.done)
	}
	return done
}

func TestNewRequiresRegistryAndSink(t *testing.T) {
	if _, err := New(Config{Sink: make(channelSink)}); err == nil {
		t.Error("missing registry accepted")
	}
	if _, err := New(Config{Registry: driver.NewRegistry(testutil.DiscardLogger())}); err == nil {
		t.Error("missing sink accepted")
	}
}

func TestStartRunsEveryDriverOnceBeforeReturning(t *testing.T) {
	h := newHarness(t,
		"alpha: {enabled: true, read_in_sec: 10}\nbeta: {enabled: true, read_in_sec: 30}\ngamma: {enabled: false, read_in_sec: 5}\n",
		constant("alpha", 1), constant("beta", 2), constant("gamma", 3))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.scheduler.Start(ctx)
	defer h.scheduler.Stop()

	counts := h.drain()
	if counts["alpha"] != 1 || counts["beta"] != 1 || len(counts) != 2 {
		t.Errorf("first invocations = %v, want alpha and beta once each", counts)
	}

	jobs := h.scheduler.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("Jobs() = %+v, want 2", jobs)
	}
	if jobs[0].Driver != "alpha" || jobs[0].Interval != 10*time.Second || jobs[0].State != Scheduled {
		t.Errorf("jobs[0] = %+v", jobs[0])
	}
	if jobs[1].Driver != "beta" || jobs[1].Interval != 30*time.Second {
		t.Errorf("jobs[1] = %+v", jobs[1])
	}
}

func TestFailingDriverIsStillScheduled(t *testing.T) {
	var calls atomic.Int32
	failing := driver.Func{
		DriverName: "broken",
		ReadFunc: func(context.Context, driver.Config) ([]reading.Reading, error) {
			calls.Add(1)
			return nil, errors.New("sensor unplugged")
		},
	}
	h := newHarness(t, "broken: {enabled: true, read_in_sec: 5}\n", failing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.scheduler.Start(ctx)
	defer h.scheduler.Stop()

	if calls.Load() != 1 {
		t.Errorf("first invocation count = %d, want 1", calls.Load())
	}
	if counts := h.drain(); len(counts) != 0 {
		t.Errorf("failing driver delivered %v", counts)
	}
	jobs := h.scheduler.Jobs()
	if len(jobs) != 1 || jobs[0].State != Scheduled {
		t.Errorf("Jobs() = %+v, want broken scheduled", jobs)
	}
}

func TestTicksInvokeDriver(t *testing.T) {
	h := newHarness(t, "alpha: {enabled: true, read_in_sec: 10}\n", constant("alpha", 1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.scheduler.Start(ctx)
	defer h.scheduler.Stop()
	h.drain()

	h.clock.WaitForTimers(1)
	h.clock.Advance(10 * time.Second)
	got := testutil.RequireReceive(t, h.sink, waitTimeout, "first tick")
	if got.driver != "alpha" || len(got.readings) != 1 {
		t.Errorf("delivery = %+v", got)
	}

	h.clock.Advance(10 * time.Second)
	testutil.RequireReceive(t, h.sink, waitTimeout, "second tick")
}

func TestBusyDriverSkipsTick(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32
	slow := driver.Func{
		DriverName: "slow",
		ReadFunc: func(context.Context, driver.Config) ([]reading.Reading, error) {
			if calls.Add(1) > 1 {
				started <- struct{}{}
				<-release
			}
			return []reading.Reading{{ROM: "_slow", Type: "temp", Value: 1.0, Name: "slow"}}, nil
		},
	}
	h := newHarness(t, "slow: {enabled: true, read_in_sec: 10}\n", slow)
	logger, logs := testutil.CaptureLogger()
	h.scheduler.logger = logger
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.scheduler.Start(ctx)
	defer h.scheduler.Stop()
	h.drain()

	h.clock.WaitForTimers(1)
	h.clock.Advance(10 * time.Second)
	testutil.RequireReceive(t, started, waitTimeout, "tick invocation starting")

	// The tick invocation holds the driver lock, so another attempt
	// returns without calling the driver.
	h.scheduler.invoke(ctx, driver.Entry{Name: "slow", Interval: 10 * time.Second})
	if calls.Load() != 2 {
		t.Errorf("driver calls = %d, want 2 (overlapping invocation must be skipped)", calls.Load())
	}
	if !strings.Contains(logs.String(), "skipping tick") {
		t.Errorf("skip not logged:\n%s", logs.String())
	}

	close(release)
	testutil.RequireReceive(t, h.sink, waitTimeout, "slow invocation delivering")
}

func TestSettingsChangeRebuildsJobs(t *testing.T) {
	h := newHarness(t, "alpha: {enabled: true, read_in_sec: 10}\n",
		constant("alpha", 1), constant("beta", 2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.scheduler.Start(ctx)
	defer h.scheduler.Stop()
	h.drain()

	if h.scheduler.CheckForChanges(ctx) {
		t.Fatal("rebuild without a settings change")
	}

	before := h.scheduler.Jobs()
	oldDone := h.jobDone()
	writeSettings(t, h.settings,
		"alpha: {enabled: true, read_in_sec: 10}\nbeta: {enabled: true, read_in_sec: 10}\n",
		epoch.Add(time.Minute))

	if !h.scheduler.CheckForChanges(ctx) {
		t.Fatal("settings change not detected")
	}
	for _, done := range oldDone {
		testutil.RequireClosed(t, done, waitTimeout, "old job exiting")
	}

	after := h.scheduler.Jobs()
	if len(after) != 2 {
		t.Fatalf("Jobs() after rebuild = %+v, want alpha and beta", after)
	}
	for _, info := range after {
		if info.Generation != before[0].Generation+1 || info.State != Scheduled {
			t.Errorf("job %+v, want generation %d scheduled", info, before[0].Generation+1)
		}
	}

	counts := h.drain()
	if counts["alpha"] != 1 || counts["beta"] != 1 {
		t.Errorf("rebuild first invocations = %v", counts)
	}

	// One tick per driver: the cancelled alpha job must not fire too.
	h.clock.WaitForTimers(2)
	h.clock.Advance(10 * time.Second)
	counts = make(map[string]int)
	for range 2 {
		d := testutil.RequireReceive(t, h.sink, waitTimeout, "tick after rebuild")
		counts[d.driver]++
	}
	if counts["alpha"] != 1 || counts["beta"] != 1 {
		t.Errorf("ticks after rebuild = %v", counts)
	}
	testutil.RequireNoReceive(t, h.sink, 50*time.Millisecond, "extra delivery from a cancelled job")
}

func TestCancelledJobState(t *testing.T) {
	h := newHarness(t, "alpha: {enabled: true, read_in_sec: 10}\n", constant("alpha", 1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.scheduler.Start(ctx)
	h.scheduler.mu.Lock()
	old := h.scheduler.jobs["alpha"]
	h.scheduler.mu.Unlock()

	h.scheduler.Stop()
	if old.state != Cancelled {
		t.Errorf("state after Stop = %v, want cancelled", old.state)
	}
	testutil.RequireClosed(t, old.done, waitTimeout, "job exiting")
	if jobs := h.scheduler.Jobs(); len(jobs) != 0 {
		t.Errorf("Jobs() after Stop = %+v", jobs)
	}
}

func TestRunRequestsRestartOnConfigChange(t *testing.T) {
	h := newHarness(t, "alpha: {enabled: true, read_in_sec: 3600}\n", constant("alpha", 1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- h.scheduler.Run(ctx) }()

	// Job ticker, settings poll, config poll.
	h.clock.WaitForTimers(3)
	writeSettings(t, h.config, "group: attic\n", epoch.Add(time.Hour))
	h.clock.Advance(DefaultConfigPollInterval)

	err := testutil.RequireReceive(t, result, waitTimeout, "Run returning")
	if !errors.Is(err, ErrRestartRequested) {
		t.Fatalf("Run() = %v, want ErrRestartRequested", err)
	}
	if jobs := h.scheduler.Jobs(); len(jobs) != 0 {
		t.Errorf("jobs still present after Run returned: %+v", jobs)
	}
}

func TestRunReturnsNilOnCancel(t *testing.T) {
	h := newHarness(t, "alpha: {enabled: true, read_in_sec: 10}\n", constant("alpha", 1))
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() { result <- h.scheduler.Run(ctx) }()
	h.clock.WaitForTimers(3)
	cancel()

	if err := testutil.RequireReceive(t, result, waitTimeout, "Run returning"); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		Unscheduled: "unscheduled",
		Scheduled:   "scheduled",
		Cancelled:   "cancelled",
		State(9):    "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
