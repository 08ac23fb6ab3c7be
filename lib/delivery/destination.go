// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"fmt"
	"time"
)

// Destination kinds.
const (
	KindHTTP   = "http"
	KindLegacy = "legacy"
	KindInflux = "influx"
)

const (
	// DefaultBatchSize is used when a destination leaves BatchSize
	// unset.
	DefaultBatchSize = 100

	// DefaultTimeout is the per-request timeout when a destination
	// leaves Timeout unset.
	DefaultTimeout = 10 * time.Second
)

// Destination is one delivery target.
type Destination struct {
	Name      string
	Kind      string
	URL       string
	APIKey    string
	Enabled   bool
	BatchSize int
	Timeout   time.Duration

	// Gzip compresses http request bodies.
	Gzip bool

	// Org and Bucket are required by the influx kind.
	Org    string
	Bucket string
}

// WithDefaults fills in the kind, batch size, and timeout.
func (d Destination) WithDefaults() Destination {
	if d.Kind == "" {
		d.Kind = KindHTTP
	}
	if d.BatchSize <= 0 {
		d.BatchSize = DefaultBatchSize
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	return d
}

// Usable reports whether the destination can be sent to, and if not,
// why. A destination is usable when it is enabled, has a URL and an
// API key, and (for influx) names an org and a bucket.
func (d Destination) Usable() (bool, string) {
	switch {
	case !d.Enabled:
		return false, "disabled"
	case d.URL == "":
		return false, "no url"
	case d.APIKey == "":
		return false, "no api key"
	}
	switch d.Kind {
	case "", KindHTTP, KindLegacy:
		return true, ""
	case KindInflux:
		if d.Org == "" || d.Bucket == "" {
			return false, "influx destination needs org and bucket"
		}
		return true, ""
	default:
		return false, fmt.Sprintf("unknown kind %q", d.Kind)
	}
}
