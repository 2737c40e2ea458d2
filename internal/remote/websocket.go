// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// ConnectKernel opens the kernel's websocket message channel. The
// returned connection carries the Jupyter wire protocol opaquely; the
// bridge relays frames without interpreting them.
func (c *Client) ConnectKernel(ctx context.Context, id string) (*websocket.Conn, error) {
	base, token, err := c.target()
	if err != nil {
		return nil, err
	}

	u, err := apiURL(base, token, "api", "kernels", id, "channels")
	if err != nil {
		return nil, err
	}
	wsURL, err := toWebSocketURL(u)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open kernel channel (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to open kernel channel: %w", err)
	}
	return conn, nil
}

// toWebSocketURL maps an http(s) endpoint to its ws(s) equivalent.
func toWebSocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid channel URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in channel URL", u.Scheme)
	}
	// Guard against double slashes from user-entered base URLs.
	u.Path = strings.ReplaceAll(u.Path, "//", "/")
	return u.String(), nil
}
