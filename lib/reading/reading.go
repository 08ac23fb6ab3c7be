// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reading defines the canonical measurement produced by
// drivers. A Reading carries no destination or retry state; it is a
// plain value and is passed by value everywhere.
package reading

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reading is one measured value in the legacy driver format.
type Reading struct {
	// ROM is the legacy free-text sensor identifier. It may already
	// carry the device/group prefix and leading underscores.
	ROM string `json:"rom" yaml:"rom"`

	// Type is a category label ("temp", "humid", "system"). Not
	// enumerated; collectors normalize it.
	Type string `json:"type" yaml:"type"`

	// Value is the measurement. Drivers emit float64 or int; readings
	// decoded from JSON may hold a numeric string or json.Number. Use
	// Float to coerce.
	Value any `json:"value" yaml:"value"`

	// Name is a human-friendly label.
	Name string `json:"name" yaml:"name"`

	// Unit is optional.
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// ErrMalformedValue is wrapped by every Float failure.
var ErrMalformedValue = errors.New("malformed reading value")

// Float coerces Value to a finite float64.
func (r Reading) Float() (float64, error) {
	value, err := toFloat(r.Value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrMalformedValue, value)
	}
	return value, nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return parseNumeric(string(v))
	case string:
		return parseNumeric(v)
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrMalformedValue)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrMalformedValue, value)
	}
}

func parseNumeric(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty string", ErrMalformedValue)
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedValue, text)
	}
	return value, nil
}
