// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bureau-foundation/nettemp-agent/lib/reading"
)

// Driver samples one family of sensors. Read must honor ctx and must
// not block indefinitely. On failure it returns an error; the caller
// treats that as an empty sample.
type Driver interface {
	Name() string
	Read(ctx context.Context, config Config) ([]reading.Reading, error)
}

// Func adapts a function to the Driver interface.
type Func struct {
	DriverName string
	ReadFunc   func(ctx context.Context, config Config) ([]reading.Reading, error)
}

// Name returns DriverName.
func (f Func) Name() string { return f.DriverName }

// Read calls ReadFunc.
func (f Func) Read(ctx context.Context, config Config) ([]reading.Reading, error) {
	return f.ReadFunc(ctx, config)
}

// Config is one driver's settings mapping. Values are whatever the
// settings file decoded to: strings, ints, floats, bools, lists, maps.
type Config map[string]any

// String returns the value at key as a string, or fallback if absent.
// Scalars are formatted; other types yield fallback.
func (c Config) String(key, fallback string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	default:
		return fallback
	}
}

// Int returns the value at key as an int, or fallback if absent or not
// an integer.
func (c Config) Int(key string, fallback int) int {
	value, ok := toInt(c[key])
	if !ok {
		return fallback
	}
	return value
}

// Bool reports whether the value at key is truthy: true, or a string
// "true"/"yes"/"on"/"1", or a non-zero number.
func (c Config) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			return true
		}
		return false
	case int:
		return v != 0
	case float64:
		return v != 0
	default:
		return false
	}
}

// Strings returns the value at key as a string list. A single string
// becomes a one-element list.
func (c Config) Strings(key string) []string {
	switch v := c[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// toInt accepts ints, integral floats, and numeric strings.
func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		if v > math.MaxInt || v < math.MinInt {
			return 0, false
		}
		return int(v), true
	case uint64:
		if v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case float64:
		return floatToInt(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if parsed, err := strconv.Atoi(trimmed); err == nil {
			return parsed, true
		}
		if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return floatToInt(parsed)
		}
		return 0, false
	default:
		return 0, false
	}
}

// floatToInt accepts whole numbers representable as int. 2^63 itself
// is excluded: it rounds from MaxInt64 but does not fit.
func floatToInt(v float64) (int, bool) {
	if math.IsInf(v, 0) || math.IsNaN(v) || v != math.Trunc(v) {
		return 0, false
	}
	if v >= float64(math.MaxInt) || v < float64(math.MinInt) {
		return 0, false
	}
	return int(v), true
}
