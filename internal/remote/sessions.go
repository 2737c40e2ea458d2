// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/traylinx/kernelBridge/internal/backend"
)

func parseSession(v gjson.Result) backend.SessionModel {
	return backend.SessionModel{
		ID:     v.Get("id").String(),
		Path:   v.Get("path").String(),
		Name:   v.Get("name").String(),
		Type:   v.Get("type").String(),
		Kernel: parseKernel(v.Get("kernel")),
	}
}

// ListSessions enumerates the server's running sessions.
func (c *Client) ListSessions(ctx context.Context) ([]backend.SessionModel, error) {
	base, token, err := c.target()
	if err != nil {
		return nil, err
	}
	u, err := apiURL(base, token, "api", "sessions")
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

	var out []backend.SessionModel
	for _, v := range gjson.ParseBytes(data).Array() {
		out = append(out, parseSession(v))
	}
	return out, nil
}

// StartSession starts a session on the server and returns its model.
func (c *Client) StartSession(ctx context.Context, opts backend.StartSessionOptions) (*backend.SessionModel, error) {
	base, token, err := c.target()
	if err != nil {
		return nil, err
	}
	u, err := apiURL(base, token, "api", "sessions")
	if err != nil {
		return nil, err
	}

	body := "{}"
	for _, set := range []struct {
		path  string
		value string
	}{
		{"path", opts.Path},
		{"name", opts.Name},
		{"type", opts.Type},
		{"kernel.name", opts.Kernel.Name},
	} {
		if body, err = sjson.Set(body, set.path, set.value); err != nil {
			return nil, fmt.Errorf("failed to build session request: %w", err)
		}
	}

	data, status, err := c.do(ctx, http.MethodPost, u, []byte(body))
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, &StatusError{StatusCode: status, Status: http.StatusText(status)}
	}
	model := parseSession(gjson.ParseBytes(data))
	return &model, nil
}

// GetSession returns the session model for id, or nil when the server
// does not know the id.
func (c *Client) GetSession(ctx context.Context, id string) (*backend.SessionModel, error) {
	base, token, err := c.target()
	if err != nil {
		return nil, err
	}
	u, err := apiURL(base, token, "api", "sessions", id)
	if err != nil {
		return nil, err
	}
	data, status, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, &StatusError{StatusCode: status, Status: http.StatusText(status)}
	}
	model := parseSession(gjson.ParseBytes(data))
	return &model, nil
}

// DeleteSession shuts down the session with the given id.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	base, token, err := c.target()
	if err != nil {
		return err
	}
	u, err := apiURL(base, token, "api", "sessions", id)
	if err != nil {
		return err
	}
	_, status, err := c.do(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &StatusError{StatusCode: status, Status: http.StatusText(status)}
	}
	return nil
}
