// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/nettemp-agent/lib/netutil"
	"github.com/bureau-foundation/nettemp-agent/lib/payload"
)

// OutcomeKind classifies the result of one request.
type OutcomeKind int

const (
	Delivered OutcomeKind = iota
	Unauthorized
	RateLimited
	TimedOut
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case Unauthorized:
		return "unauthorized"
	case RateLimited:
		return "rate_limited"
	case TimedOut:
		return "timeout"
	default:
		return "failed"
	}
}

// Outcome is the result of one request. StatusCode is zero when no
// response was received.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Err        error
}

// Sender performs a single delivery request. Implementations do not
// retry; the Manager applies the retry policy.
type Sender interface {
	Send(ctx context.Context, p payload.Payload) Outcome
}

// statusOutcome classifies an HTTP status code. detail is included in
// the error for non-2xx responses.
func statusOutcome(status int, detail string) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Outcome{Kind: Delivered, StatusCode: status}
	case status == http.StatusUnauthorized:
		return Outcome{Kind: Unauthorized, StatusCode: status, Err: fmt.Errorf("HTTP %d: invalid API key", status)}
	case status == http.StatusTooManyRequests:
		return Outcome{Kind: RateLimited, StatusCode: status, Err: fmt.Errorf("HTTP %d: rate limited", status)}
	default:
		if detail != "" {
			return Outcome{Kind: Failed, StatusCode: status, Err: fmt.Errorf("HTTP %d: %s", status, detail)}
		}
		return Outcome{Kind: Failed, StatusCode: status, Err: fmt.Errorf("HTTP %d", status)}
	}
}

// transportOutcome classifies a request that produced no response. A
// cancelled parent context is a plain failure, not a timeout, so
// shutdown does not trigger a retry.
func transportOutcome(parent context.Context, err error) Outcome {
	if parent.Err() == nil && netutil.IsTimeout(err) {
		return Outcome{Kind: TimedOut, Err: err}
	}
	return Outcome{Kind: Failed, Err: err}
}
