package detector

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	DefaultConnectTimeout  = 2 * time.Second
	DefaultResponseTimeout = 10 * time.Second
)

// HTTPDetector reports ready when a GET on URL answers with a 2xx status.
// Connection failures, timeouts and non-2xx answers all mean "not ready";
// the returned error is informational only.
type HTTPDetector struct {
	URL             string
	ConnectTimeout  time.Duration // default 2s
	ResponseTimeout time.Duration // default 10s
}

var _ ContextDetector = HTTPDetector{}

func (d HTTPDetector) Alive() (bool, error) {
	return d.Probe(context.Background())
}

// Probe is Alive bound to ctx.
func (d HTTPDetector) Probe(ctx context.Context) (bool, error) {
	connect := d.ConnectTimeout
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	respTimeout := d.ResponseTimeout
	if respTimeout <= 0 {
		respTimeout = DefaultResponseTimeout
	}
	client := &http.Client{
		Timeout: connect + respTimeout,
		Transport: &http.Transport{
			DialContext:       (&net.Dialer{Timeout: connect}).DialContext,
			DisableKeepAlives: true,
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("status %d from %s", resp.StatusCode, d.URL)
	}
	return true, nil
}

func (d HTTPDetector) Describe() string { return "http:" + d.URL }
