// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package remote implements the HTTP/WebSocket client for a networked
// Jupyter-protocol server and the manager that presents it as a
// backend. The client reads the base URL and token from the
// configuration provider on every call, so user changes apply to the
// next operation without reconstruction.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/traylinx/kernelBridge/internal/backend"
)

// ErrNotConfigured is returned when an operation requires a remote
// server but no base URL is configured.
var ErrNotConfigured = errors.New("no remote server configured")

// StatusError reports a non-success HTTP response from the server.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status: %s", e.Status)
}

// Client is a direct Jupyter REST/WebSocket client. All methods are
// safe for concurrent use.
type Client struct {
	cfg  backend.ConfigProvider
	http *http.Client
}

// NewClient creates a client reading its target from cfg per call.
func NewClient(cfg backend.ConfigProvider) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// target returns the configured base URL and token, or ErrNotConfigured.
func (c *Client) target() (base, token string, err error) {
	base = c.cfg.RemoteBaseURL()
	if base == "" {
		return "", "", ErrNotConfigured
	}
	return base, c.cfg.RemoteToken(), nil
}

// apiURL builds an endpoint URL under base, attaching the token as a
// query parameter when present.
func apiURL(base, token string, parts ...string) (string, error) {
	u, err := url.JoinPath(base, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to build endpoint URL: %w", err)
	}
	if token != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "token=" + url.QueryEscape(token)
	}
	return u, nil
}

// do performs one request and returns the decoded body and status code.
// Compressed responses (gzip, br) are decoded transparently.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "kernelBridge/1.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	var src io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, resp.StatusCode, fmt.Errorf("failed to decode gzip body: %w", err)
		}
		defer gz.Close()
		src = gz
	case "br":
		src = brotli.NewReader(resp.Body)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// FetchRawSpecs retrieves the raw kernelspec payload from the server at
// baseURL. The base is explicit rather than read from configuration
// because the spec merger fetches from different servers depending on
// the operating mode.
func (c *Client) FetchRawSpecs(ctx context.Context, baseURL, token string) ([]byte, error) {
	u, err := apiURL(baseURL, token, "api", "kernelspecs")
	if err != nil {
		return nil, err
	}
	data, status, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{StatusCode: status, Status: http.StatusText(status)}
	}
	return data, nil
}
