// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Settings maps driver names to their configuration.
type Settings map[string]Config

// LoadSettings reads the driver settings file at path. Any failure
// (missing file, parse error) is logged and yields empty Settings.
// Top-level values that are not mappings are ignored.
func LoadSettings(path string, logger *slog.Logger) Settings {
	settings, err := ParseSettingsFile(path)
	if err != nil {
		logger.Warn("driver settings unavailable, running without drivers",
			"path", path,
			"error", err,
		)
		return Settings{}
	}
	logger.Info("driver settings loaded", "path", path, "drivers", len(settings))
	return settings
}

// ParseSettingsFile reads and decodes a settings file. Files ending in
// .json or .jsonc may contain comments and trailing commas.
func ParseSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	return ParseSettings(data)
}

// ParseSettings decodes YAML (or plain JSON) settings.
func ParseSettings(data []byte) (Settings, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing driver settings: %w", err)
	}
	settings := make(Settings, len(raw))
	for name, value := range raw {
		mapping, ok := value.(map[string]any)
		if !ok {
			continue
		}
		settings[name] = Config(mapping)
	}
	return settings, nil
}
