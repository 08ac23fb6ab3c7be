// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/nettemp-agent/lib/delivery"
	"github.com/bureau-foundation/nettemp-agent/lib/mqttrelay"
)

// Names of the destinations synthesized from legacy flat keys.
const (
	CloudDestination = "cloud"
	LocalDestination = "local"
)

// placeholder values written by older installers mean "unset".
var placeholders = map[string]bool{
	"":                       true,
	"empty":                  true,
	"https://default_server": true,
	"default_key":            true,
}

// Config is the primary configuration file.
type Config struct {
	// Group is the device identity used to prefix sensor ids. Empty
	// means the hostname.
	Group string `yaml:"group"`

	// DriversFile is the per-driver settings file.
	DriversFile string `yaml:"drivers_file"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// DriverTimeout bounds a single driver invocation.
	DriverTimeout time.Duration `yaml:"driver_timeout"`

	// RestartMarker is written before the agent re-executes itself.
	RestartMarker string `yaml:"restart_marker"`

	Destinations []DestinationConfig `yaml:"destinations"`
	Buffer       BufferConfig        `yaml:"buffer"`
	Watch        WatchConfig         `yaml:"watch"`
	MQTT         MQTTConfig          `yaml:"mqtt"`
	Metrics      MetricsConfig       `yaml:"metrics"`

	// Legacy flat keys.
	CloudEnabled bool   `yaml:"cloud_enabled"`
	CloudServer  string `yaml:"cloud_server"`
	CloudAPIKey  string `yaml:"cloud_api_key"`
	Server       string `yaml:"server"`
	ServerAPIKey string `yaml:"server_api_key"`
	MQTTServer   string `yaml:"mqtt_server"`
	MQTTPort     int    `yaml:"mqtt_port"`
	MQTTUsername string `yaml:"mqtt_username"`
	MQTTPassword string `yaml:"mqtt_password"`

	// path is the file this config was loaded from.
	path string
}

// DestinationConfig describes one collector.
type DestinationConfig struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
	Gzip      bool          `yaml:"gzip"`

	// Org and Bucket apply to the influx kind.
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// BufferConfig configures the offline buffer.
type BufferConfig struct {
	Path          string        `yaml:"path"`
	BusyTimeout   time.Duration `yaml:"busy_timeout"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushLimit    int           `yaml:"flush_limit"`
}

// WatchConfig sets the polling cadence for the two watched files.
type WatchConfig struct {
	DriversInterval time.Duration `yaml:"drivers_interval"`
	ConfigInterval  time.Duration `yaml:"config_interval"`
}

// MQTTConfig configures the MQTT side channel.
type MQTTConfig struct {
	Server      string `yaml:"server"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	// Listen is a host:port. Empty disables the listener.
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DriversFile:   "drivers_config.yaml",
		LogLevel:      "info",
		DriverTimeout: 30 * time.Second,
		RestartMarker: "restart.json",
		Buffer: BufferConfig{
			Path:          "cloud_buffer.db",
			BusyTimeout:   5 * time.Second,
			FlushInterval: 60 * time.Second,
			FlushLimit:    delivery.DefaultFlushLimit,
		},
		Watch: WatchConfig{
			DriversInterval: time.Second,
			ConfigInterval:  60 * time.Second,
		},
		MQTT: MQTTConfig{
			TopicPrefix: mqttrelay.DefaultTopicPrefix,
		},
	}
}

// LoadFile loads path over Default, expands variables, and resolves
// relative paths against the file's directory.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.finish(path)
	return cfg, nil
}

// Load is LoadFile that never fails: a missing or unparseable file is
// logged at warn level and the defaults are returned, with relative
// paths still resolved against path's directory.
func Load(path string, logger *slog.Logger) *Config {
	cfg, err := LoadFile(path)
	if err == nil {
		return cfg
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("config file not found, using defaults", "path", path)
	} else {
		logger.Warn("config file unreadable, using defaults", "path", path, "error", err)
	}
	return DefaultAt(path)
}

// DefaultAt returns Default with relative paths resolved as if an
// empty file at path had been loaded.
func DefaultAt(path string) *Config {
	cfg := Default()
	cfg.finish(path)
	return cfg
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

func (c *Config) finish(path string) {
	c.path = path
	c.expandVariables()
	base := filepath.Dir(path)
	c.DriversFile = resolve(base, c.DriversFile)
	c.RestartMarker = resolve(base, c.RestartMarker)
	c.Buffer.Path = resolve(base, c.Buffer.Path)
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths, endpoints, and credentials.
func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}

	c.Group = expandVars(c.Group, vars)
	c.DriversFile = expandVars(c.DriversFile, vars)
	c.RestartMarker = expandVars(c.RestartMarker, vars)
	c.Buffer.Path = expandVars(c.Buffer.Path, vars)
	c.CloudServer = expandVars(c.CloudServer, vars)
	c.CloudAPIKey = expandVars(c.CloudAPIKey, vars)
	c.Server = expandVars(c.Server, vars)
	c.ServerAPIKey = expandVars(c.ServerAPIKey, vars)
	c.MQTT.Server = expandVars(c.MQTT.Server, vars)
	c.MQTT.Password = expandVars(c.MQTT.Password, vars)
	c.MQTTPassword = expandVars(c.MQTTPassword, vars)
	for i := range c.Destinations {
		destination := &c.Destinations[i]
		destination.URL = expandVars(destination.URL, vars)
		destination.APIKey = expandVars(destination.APIKey, vars)
		destination.Org = expandVars(destination.Org, vars)
		destination.Bucket = expandVars(destination.Bucket, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var logLevels = []string{"", "debug", "info", "warn", "error"}

var destinationKinds = []string{"", delivery.KindHTTP, delivery.KindLegacy, delivery.KindInflux}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !contains(logLevels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("log_level must be one of: debug, info, warn, error"))
	}
	if c.DriverTimeout < 0 {
		errs = append(errs, fmt.Errorf("driver_timeout must not be negative"))
	}
	if c.Buffer.Path == "" {
		errs = append(errs, fmt.Errorf("buffer.path is required"))
	}
	if c.Buffer.BusyTimeout < 0 || c.Buffer.FlushInterval < 0 || c.Buffer.FlushLimit < 0 {
		errs = append(errs, fmt.Errorf("buffer durations and flush_limit must not be negative"))
	}
	if c.Watch.DriversInterval < 0 || c.Watch.ConfigInterval < 0 {
		errs = append(errs, fmt.Errorf("watch intervals must not be negative"))
	}
	if c.MQTT.Port < 0 || c.MQTT.Port > 65535 || c.MQTTPort < 0 || c.MQTTPort > 65535 {
		errs = append(errs, fmt.Errorf("mqtt port must be between 0 and 65535"))
	}

	seen := make(map[string]bool)
	for i, destination := range c.Destinations {
		if destination.Name == "" {
			errs = append(errs, fmt.Errorf("destinations[%d].name is required", i))
		} else if seen[destination.Name] {
			errs = append(errs, fmt.Errorf("destinations[%d]: duplicate name %q", i, destination.Name))
		}
		seen[destination.Name] = true
		if !contains(destinationKinds, destination.Kind) {
			errs = append(errs, fmt.Errorf("destinations[%d].kind must be one of: http, legacy, influx", i))
		}
		if destination.BatchSize < 0 {
			errs = append(errs, fmt.Errorf("destinations[%d].batch_size must not be negative", i))
		}
		if destination.Timeout < 0 {
			errs = append(errs, fmt.Errorf("destinations[%d].timeout must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// DeliveryDestinations returns the configured destinations followed
// by any synthesized from the legacy flat keys.
func (c *Config) DeliveryDestinations() []delivery.Destination {
	var destinations []delivery.Destination
	named := make(map[string]bool)
	for _, d := range c.Destinations {
		enabled := d.Enabled == nil || *d.Enabled
		destinations = append(destinations, delivery.Destination{
			Name:      d.Name,
			Kind:      d.Kind,
			URL:       strings.TrimRight(d.URL, "/"),
			APIKey:    d.APIKey,
			Enabled:   enabled,
			BatchSize: d.BatchSize,
			Timeout:   d.Timeout,
			Gzip:      d.Gzip,
			Org:       d.Org,
			Bucket:    d.Bucket,
		})
		named[d.Name] = true
	}

	if !named[CloudDestination] && !placeholders[c.CloudServer] {
		destinations = append(destinations, delivery.Destination{
			Name:    CloudDestination,
			Kind:    delivery.KindHTTP,
			URL:     strings.TrimRight(c.CloudServer, "/"),
			APIKey:  c.CloudAPIKey,
			Enabled: c.CloudEnabled,
		})
	}
	if !named[LocalDestination] && !placeholders[c.Server] && !placeholders[c.ServerAPIKey] {
		destinations = append(destinations, delivery.Destination{
			Name:    LocalDestination,
			Kind:    delivery.KindLegacy,
			URL:     c.Server,
			APIKey:  c.ServerAPIKey,
			Enabled: true,
			Timeout: 5 * time.Second,
		})
	}
	return destinations
}

// MQTTRelay returns the relay settings. Fields the mqtt section
// leaves empty fall back to the flat mqtt_* keys.
func (c *Config) MQTTRelay(group string) mqttrelay.Config {
	relay := mqttrelay.Config{
		Server:      firstSet(c.MQTT.Server, c.MQTTServer),
		Port:        c.MQTT.Port,
		Username:    firstSet(c.MQTT.Username, c.MQTTUsername),
		Password:    firstSet(c.MQTT.Password, c.MQTTPassword),
		ClientID:    c.MQTT.ClientID,
		TopicPrefix: c.MQTT.TopicPrefix,
		Group:       group,
	}
	if relay.Port == 0 {
		relay.Port = c.MQTTPort
	}
	if placeholders[relay.Username] {
		relay.Username = ""
		relay.Password = ""
	}
	return relay
}

func firstSet(values ...string) string {
	for _, value := range values {
		if !placeholders[value] {
			return value
		}
	}
	return ""
}

// FallbackDeviceID is the identity used when neither group nor the
// hostname is available.
const FallbackDeviceID = "nettemp-client"

// DeviceID returns the configured group, else the hostname, else
// FallbackDeviceID.
func (c *Config) DeviceID() string {
	return deviceID(c.Group, os.Hostname)
}

func deviceID(group string, hostname func() (string, error)) string {
	if group = strings.TrimSpace(group); group != "" {
		return group
	}
	if name, err := hostname(); err == nil && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return FallbackDeviceID
}
