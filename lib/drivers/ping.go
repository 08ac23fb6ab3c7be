// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drivers

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/driver"
	"github.com/bureau-foundation/nettemp-agent/lib/reading"
)

const (
	pingTimeout     = 5 * time.Second
	pingConcurrency = 8
)

// Ping measures reachability of the "hosts" list. Entries starting
// with http:// or https:// are fetched with GET and report the round
// trip in milliseconds when the status is 200. Other entries are
// dialed over TCP ("host" or "host:port", port 80 by default) and
// report the connect time. Unreachable targets report 0.
type Ping struct {
	Clock      clock.Clock
	HTTPClient *http.Client
}

// Name returns "ping".
func (p *Ping) Name() string { return "ping" }

// Read probes every host concurrently and returns readings in the
// order the hosts were listed.
func (p *Ping) Read(ctx context.Context, config driver.Config) ([]reading.Reading, error) {
	hosts := config.Strings("hosts")
	readings := make([]reading.Reading, len(hosts))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(pingConcurrency)
	for i, host := range hosts {
		group.Go(func() error {
			readings[i] = p.probe(groupCtx, host)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

func (p *Ping) probe(ctx context.Context, target string) reading.Reading {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	kind := "host"
	var elapsed time.Duration
	var ok bool
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		kind = "url"
		elapsed, ok = p.fetch(ctx, target)
	} else {
		elapsed, ok = p.dial(ctx, target)
	}

	value := 0.0
	if ok {
		value = round(float64(elapsed)/float64(time.Millisecond), 2)
	}
	return reading.Reading{
		ROM:   "_" + kind + "_" + strings.ReplaceAll(target, "://", "_"),
		Type:  kind,
		Value: value,
		Name:  target,
		Unit:  "ms",
	}
}

func (p *Ping) fetch(ctx context.Context, url string) (time.Duration, bool) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false
	}
	start := p.Clock.Now()
	response, err := p.HTTPClient.Do(request)
	if err != nil {
		return 0, false
	}
	response.Body.Close()
	return p.Clock.Now().Sub(start), response.StatusCode == http.StatusOK
}

func (p *Ping) dial(ctx context.Context, host string) (time.Duration, bool) {
	address := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		address = net.JoinHostPort(host, "80")
	}
	var dialer net.Dialer
	start := p.Clock.Now()
	connection, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, false
	}
	connection.Close()
	return p.Clock.Now().Sub(start), true
}
