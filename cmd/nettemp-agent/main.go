// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/config"
	"github.com/bureau-foundation/nettemp-agent/lib/driver"
	"github.com/bureau-foundation/nettemp-agent/lib/drivers"
	"github.com/bureau-foundation/nettemp-agent/lib/process"
	"github.com/bureau-foundation/nettemp-agent/lib/restart"
	"github.com/bureau-foundation/nettemp-agent/lib/scheduler"
	"github.com/bureau-foundation/nettemp-agent/lib/version"
)

// reexec replaces the process image after a configuration change.
var reexec = restart.Exec

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath  string
	driversFile string
	logLevel    string
	logFormat   string
	listDrivers bool
	dumpBuffer  bool
	showVersion bool
}

func defaultConfigPath() string {
	if path := os.Getenv("NETTEMP_CONFIG"); path != "" {
		return path
	}
	return "config.conf"
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("nettemp-agent", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", defaultConfigPath(), "primary configuration file")
	flagSet.StringVar(&opts.driversFile, "drivers", "", "driver settings file (overrides drivers_file in the config)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn, or error (overrides log_level in the config)")
	flagSet.StringVar(&opts.logFormat, "log-format", "json", "json or text")
	flagSet.BoolVar(&opts.listDrivers, "list-drivers", false, "print the registered drivers and exit")
	flagSet.BoolVar(&opts.dumpBuffer, "dump-buffer", false, "print every buffered batch as JSON lines and exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}
	if opts.logFormat != "json" && opts.logFormat != "text" {
		return options{}, fmt.Errorf("--log-format must be json or text, got %q", opts.logFormat)
	}
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "nettemp-agent %s\n", version.Info())
		return nil
	}

	// The config file may set the level, so a bootstrap logger covers
	// loading it.
	bootLevel, err := parseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	cfg := loadConfig(opts, newLogger(stderr, opts.logFormat, bootLevel))

	level := bootLevel
	if opts.logLevel == "" {
		if level, err = parseLevel(cfg.LogLevel); err != nil {
			level = slog.LevelInfo
		}
	}
	logger := newLogger(stderr, opts.logFormat, level)
	slog.SetDefault(logger)

	clk := clock.Real()
	registry := driver.NewRegistry(logger)
	drivers.Register(registry, drivers.Options{Clock: clk})

	switch {
	case opts.listDrivers:
		return listDrivers(stdout, registry, cfg.DriversFile, logger)
	case opts.dumpBuffer:
		return dumpBuffer(context.Background(), stdout, cfg, logger)
	}

	checkRestartMarker(cfg.RestartMarker, clk, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent, err := newAgent(cfg, agentDeps{Clock: clk, Logger: logger, Registry: registry})
	if err != nil {
		return err
	}
	logger.Info("nettemp agent running",
		"version", version.Info(),
		"device_id", agent.deviceID,
		"config", cfg.Path(),
		"drivers_file", cfg.DriversFile,
		"destinations", agent.manager.Destinations(),
	)

	runErr := agent.Run(ctx)
	agent.Close()

	if errors.Is(runErr, scheduler.ErrRestartRequested) {
		return restartProcess(cfg.RestartMarker, clk, logger)
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("shutting down")
	return nil
}

// loadConfig loads the primary config, falling back to the defaults
// when it is missing, unparseable, or invalid.
func loadConfig(opts options, logger *slog.Logger) *config.Config {
	cfg := config.Load(opts.configPath, logger)
	if err := cfg.Validate(); err != nil {
		logger.Warn("config invalid, using defaults", "path", opts.configPath, "error", err)
		cfg = config.DefaultAt(opts.configPath)
	}
	if opts.driversFile != "" {
		cfg.DriversFile = opts.driversFile
	}
	return cfg
}
