// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/bureau-foundation/nettemp-agent/lib/netutil"
	"github.com/bureau-foundation/nettemp-agent/lib/payload"
)

// DataPath is appended to an http destination's URL.
const DataPath = "/api/v1/data"

// HTTPSender posts payloads as JSON to {url}/api/v1/data.
type HTTPSender struct {
	destination Destination
	client      *http.Client
	userAgent   string
}

// NewHTTPSender returns a sender for destination. The destination's
// Timeout bounds each request.
func NewHTTPSender(destination Destination, client *http.Client, userAgent string) *HTTPSender {
	return &HTTPSender{
		destination: destination.WithDefaults(),
		client:      client,
		userAgent:   userAgent,
	}
}

// Send performs one POST.
func (s *HTTPSender) Send(ctx context.Context, p payload.Payload) Outcome {
	body, err := json.Marshal(p)
	if err != nil {
		return Outcome{Kind: Failed, Err: fmt.Errorf("encoding payload: %w", err)}
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+s.destination.APIKey)
	headers.Set("Content-Type", "application/json")
	headers.Set("X-Readings-Count", strconv.Itoa(p.Len()))
	return post(ctx, s.client, strings.TrimRight(s.destination.URL, "/")+DataPath,
		body, headers, s.userAgent, s.destination)
}

// post sends body to url and classifies the response.
func post(ctx context.Context, client *http.Client, url string, body []byte, headers http.Header, userAgent string, destination Destination) Outcome {
	if destination.Gzip {
		compressed, err := gzipBody(body)
		if err != nil {
			return Outcome{Kind: Failed, Err: err}
		}
		body = compressed
		headers.Set("Content-Encoding", "gzip")
	}

	requestCtx, cancel := context.WithTimeout(ctx, destination.Timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: Failed, Err: fmt.Errorf("building request: %w", err)}
	}
	request.Header = headers
	if userAgent != "" {
		request.Header.Set("User-Agent", userAgent)
	}

	response, err := client.Do(request)
	if err != nil {
		return transportOutcome(ctx, err)
	}
	defer netutil.DrainAndClose(response.Body)

	detail := ""
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		detail = netutil.ErrorBody(response.Body)
	}
	return statusOutcome(response.StatusCode, detail)
}

func gzipBody(body []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := io.Copy(writer, bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	return buffer.Bytes(), nil
}
