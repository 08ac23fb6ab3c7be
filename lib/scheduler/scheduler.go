// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/driver"
	"github.com/bureau-foundation/nettemp-agent/lib/filewatch"
	"github.com/bureau-foundation/nettemp-agent/lib/metrics"
	"github.com/bureau-foundation/nettemp-agent/lib/reading"
)

// ErrRestartRequested is returned by Run when the primary
// configuration file changed.
var ErrRestartRequested = errors.New("configuration changed, restart requested")

const (
	// DefaultDriverTimeout bounds one driver invocation.
	DefaultDriverTimeout = 30 * time.Second

	// DefaultSettingsPollInterval is how often the driver settings
	// file is checked.
	DefaultSettingsPollInterval = time.Second

	// DefaultConfigPollInterval is how often the primary
	// configuration file is checked.
	DefaultConfigPollInterval = 60 * time.Second
)

// Sink receives the readings of one driver invocation.
type Sink interface {
	Deliver(ctx context.Context, driver string, readings []reading.Reading)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, driver string, readings []reading.Reading)

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, driver string, readings []reading.Reading) {
	f(ctx, driver, readings)
}

// State is a job's lifecycle position.
type State int

const (
	Unscheduled State = iota
	Scheduled
	Cancelled
)

func (s State) String() string {
	switch s {
	case Unscheduled:
		return "unscheduled"
	case Scheduled:
		return "scheduled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// JobInfo is a snapshot of one job.
type JobInfo struct {
	Driver     string
	Interval   time.Duration
	State      State
	Generation uint64
}

// Config holds the parameters for New.
type Config struct {
	Registry *driver.Registry

	// SettingsPath is the driver settings file.
	SettingsPath string

	// ConfigPath is the primary configuration file. Empty disables
	// the restart watch.
	ConfigPath string

	Sink    Sink
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	DriverTimeout        time.Duration
	SettingsPollInterval time.Duration
	ConfigPollInterval   time.Duration
}

type job struct {
	entry      driver.Entry
	state      State
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// Scheduler owns the driver jobs.
type Scheduler struct {
	registry      *driver.Registry
	sink          Sink
	clock         clock.Clock
	logger        *slog.Logger
	metrics       *metrics.Metrics
	driverTimeout time.Duration

	settingsPath         string
	settingsWatcher      *filewatch.Watcher
	settingsPollInterval time.Duration
	configWatcher        *filewatch.Watcher
	configPollInterval   time.Duration

	mu         sync.Mutex
	jobs       map[string]*job
	generation uint64
	running    map[string]*sync.Mutex
}

// New returns a scheduler. The current state of both watched files is
// the baseline; only later changes count.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Registry == nil {
		return nil, errors.New("scheduler: Registry is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("scheduler: Sink is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.DriverTimeout <= 0 {
		cfg.DriverTimeout = DefaultDriverTimeout
	}
	if cfg.SettingsPollInterval <= 0 {
		cfg.SettingsPollInterval = DefaultSettingsPollInterval
	}
	if cfg.ConfigPollInterval <= 0 {
		cfg.ConfigPollInterval = DefaultConfigPollInterval
	}

	s := &Scheduler{
		registry:             cfg.Registry,
		sink:                 cfg.Sink,
		clock:                cfg.Clock,
		logger:               cfg.Logger,
		metrics:              cfg.Metrics,
		driverTimeout:        cfg.DriverTimeout,
		settingsPath:         cfg.SettingsPath,
		settingsWatcher:      filewatch.New(cfg.SettingsPath),
		settingsPollInterval: cfg.SettingsPollInterval,
		configPollInterval:   cfg.ConfigPollInterval,
		jobs:                 make(map[string]*job),
		running:              make(map[string]*sync.Mutex),
	}
	if cfg.ConfigPath != "" {
		s.configWatcher = filewatch.New(cfg.ConfigPath)
	}
	return s, nil
}

// Run builds the job set and then watches both files until ctx is done
// (returning nil) or the primary configuration changes (returning
// ErrRestartRequested). Jobs are cancelled before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	defer s.Stop()

	settingsTicker := s.clock.NewTicker(s.settingsPollInterval)
	defer settingsTicker.Stop()

	var configTick <-chan time.Time
	if s.configWatcher != nil {
		configTicker := s.clock.NewTicker(s.configPollInterval)
		defer configTicker.Stop()
		configTick = configTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-settingsTicker.C:
			s.CheckForChanges(ctx)
		case <-configTick:
			if s.configWatcher.Changed() {
				s.logger.Info("configuration file changed, restarting", "path", s.configWatcher.Path())
				return ErrRestartRequested
			}
		}
	}
}

// Start loads the driver settings and builds the job set. Run calls
// it; tests call it directly.
func (s *Scheduler) Start(ctx context.Context) {
	s.rebuild(ctx)
}

// CheckForChanges polls the driver settings file once and rebuilds
// the job set if it changed. Reports whether a rebuild happened.
func (s *Scheduler) CheckForChanges(ctx context.Context) bool {
	if !s.settingsWatcher.Changed() {
		return false
	}
	s.logger.Info("driver settings changed, rescheduling", "path", s.settingsPath)
	s.rebuild(ctx)
	return true
}

// Stop cancels every job without waiting for in-flight invocations.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllLocked()
	s.metrics.SetScheduledJobs(0)
}

// Jobs returns a snapshot of the current jobs sorted by driver name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		infos = append(infos, JobInfo{
			Driver:     j.entry.Name,
			Interval:   j.entry.Interval,
			State:      j.state,
			Generation: j.generation,
		})
	}
	sort.Slice(infos, func(i, k int) bool { return infos[i].Driver < infos[k].Driver })
	return infos
}

func (s *Scheduler) cancelAllLocked() {
	for name, j := range s.jobs {
		j.cancel()
		j.state = Cancelled
		delete(s.jobs, name)
	}
}

// rebuild cancels every job, reloads settings, runs each enabled
// driver once, and schedules the new set.
func (s *Scheduler) rebuild(ctx context.Context) {
	s.mu.Lock()
	s.cancelAllLocked()
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	settings := driver.LoadSettings(s.settingsPath, s.logger)
	entries := s.registry.Enabled(settings)

	// First invocations run concurrently; the rebuild waits for all
	// of them before installing tickers.
	var first errgroup.Group
	for _, entry := range entries {
		first.Go(func() error {
			s.invoke(ctx, entry)
			return nil
		})
	}
	first.Wait()

	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		jobCtx, cancel := context.WithCancel(ctx)
		j := &job{
			entry:      entry,
			state:      Scheduled,
			generation: generation,
			cancel:     cancel,
			done:       make(chan struct{}),
		}
		s.jobs[entry.Name] = j
		names = append(names, entry.Name)
		go s.runJob(jobCtx, j)
	}
	s.metrics.SetScheduledJobs(len(entries))
	s.logger.Info("drivers scheduled", "generation", generation, "drivers", names)
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	defer close(j.done)
	ticker := s.clock.NewTicker(j.entry.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			go s.invoke(ctx, j.entry)
		}
	}
}

func (s *Scheduler) driverLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.running[name]
	if !ok {
		lock = &sync.Mutex{}
		s.running[name] = lock
	}
	return lock
}

// invoke runs one driver invocation unless one is already in flight.
func (s *Scheduler) invoke(ctx context.Context, entry driver.Entry) {
	lock := s.driverLock(entry.Name)
	if !lock.TryLock() {
		s.logger.Debug("driver still running, skipping tick", "driver", entry.Name)
		s.metrics.DriverSkipped(entry.Name)
		return
	}
	defer lock.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.driverTimeout)
	defer cancel()

	start := s.clock.Now()
	readings, err := s.registry.Run(runCtx, entry.Name, entry.Config)
	s.metrics.DriverRun(entry.Name, err, s.clock.Now().Sub(start), len(readings))
	if err != nil {
		s.logger.Warn("driver failed", "driver", entry.Name, "error", err)
		return
	}
	if ctx.Err() != nil {
		s.logger.Debug("driver job cancelled during invocation, discarding readings", "driver", entry.Name)
		return
	}
	if len(readings) == 0 {
		s.logger.Debug("driver returned no readings", "driver", entry.Name)
		return
	}
	s.sink.Deliver(ctx, entry.Name, readings)
}
