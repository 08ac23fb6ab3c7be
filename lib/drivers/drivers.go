// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drivers

import (
	"net/http"
	"time"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/driver"
	"github.com/bureau-foundation/nettemp-agent/lib/hwinfo"
)

// Options configures the built-in drivers. Zero values select the
// host defaults.
type Options struct {
	ProcRoot   string
	SysRoot    string
	Clock      clock.Clock
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.ProcRoot == "" {
		o.ProcRoot = hwinfo.ProcRoot
	}
	if o.SysRoot == "" {
		o.SysRoot = hwinfo.SysRoot
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	return o
}

// Register adds every built-in driver to registry.
func Register(registry *driver.Registry, options Options) {
	options = options.withDefaults()
	registry.Register(NewSystem(options))
	registry.Register(&RPi{SysRoot: options.SysRoot})
	registry.Register(&W1Kernel{SysRoot: options.SysRoot})
	registry.Register(&LMSensors{SysRoot: options.SysRoot})
	registry.Register(&Ping{Clock: options.Clock, HTTPClient: options.HTTPClient})
}
