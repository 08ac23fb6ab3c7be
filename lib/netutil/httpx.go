// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP client helpers shared by the delivery
// senders and the ping driver.
//
// Response bodies are never read unbounded: [ErrorBody] keeps a short
// prefix for diagnostics and [DrainAndClose] discards at most
// [MaxDrainSize] bytes so the connection can be reused.
package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// MaxErrorBodySize bounds how much of an error response is kept for
// logging.
const MaxErrorBodySize = 512

// MaxDrainSize bounds how much of a response body is discarded before
// closing. Larger bodies are abandoned and the connection closed.
const MaxDrainSize int64 = 64 << 10

// ErrorBody reads the start of an HTTP error response body for
// diagnostic messages. Read errors are ignored; a partial body is
// still useful in a log line.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBodySize))
	return strings.TrimSpace(string(data))
}

// DrainAndClose discards up to MaxDrainSize bytes of body and closes
// it.
func DrainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, MaxDrainSize))
	body.Close()
}

// IsTimeout reports whether err is a deadline expiry: a context
// deadline, or a net.Error that reports Timeout (http.Client.Timeout
// and dial timeouts both surface this way).
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
