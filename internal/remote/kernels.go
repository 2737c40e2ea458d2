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

func parseKernel(v gjson.Result) backend.KernelModel {
	return backend.KernelModel{
		ID:             v.Get("id").String(),
		Name:           v.Get("name").String(),
		LastActivity:   v.Get("last_activity").String(),
		ExecutionState: v.Get("execution_state").String(),
		Connections:    int(v.Get("connections").Int()),
	}
}

// ListKernels enumerates the server's running kernels.
func (c *Client) ListKernels(ctx context.Context) ([]backend.KernelModel, error) {
	base, token, err := c.target()
	if err != nil {
		return nil, err
	}
	u, err := apiURL(base, token, "api", "kernels")
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

	var out []backend.KernelModel
	for _, v := range gjson.ParseBytes(data).Array() {
		out = append(out, parseKernel(v))
	}
	return out, nil
}

// StartKernel starts a kernel on the server and returns its model.
func (c *Client) StartKernel(ctx context.Context, opts backend.StartKernelOptions) (*backend.KernelModel, error) {
	base, token, err := c.target()
	if err != nil {
		return nil, err
	}
	u, err := apiURL(base, token, "api", "kernels")
	if err != nil {
		return nil, err
	}

	body, err := sjson.Set("{}", "name", opts.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to build start request: %w", err)
	}
	for k, v := range opts.Env {
		if body, err = sjson.Set(body, "env."+k, v); err != nil {
			return nil, fmt.Errorf("failed to build start request: %w", err)
		}
	}

	data, status, err := c.do(ctx, http.MethodPost, u, []byte(body))
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, &StatusError{StatusCode: status, Status: http.StatusText(status)}
	}
	model := parseKernel(gjson.ParseBytes(data))
	return &model, nil
}

// GetKernel returns the kernel model for id, or nil when the server
// does not know the id.
func (c *Client) GetKernel(ctx context.Context, id string) (*backend.KernelModel, error) {
	base, token, err := c.target()
	if err != nil {
		return nil, err
	}
	u, err := apiURL(base, token, "api", "kernels", id)
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
	model := parseKernel(gjson.ParseBytes(data))
	return &model, nil
}

// DeleteKernel shuts down the kernel with the given id.
func (c *Client) DeleteKernel(ctx context.Context, id string) error {
	return c.kernelAction(ctx, http.MethodDelete, id)
}

// RestartKernel restarts the kernel with the given id.
func (c *Client) RestartKernel(ctx context.Context, id string) error {
	return c.kernelAction(ctx, http.MethodPost, id, "restart")
}

// InterruptKernel interrupts the kernel with the given id.
func (c *Client) InterruptKernel(ctx context.Context, id string) error {
	return c.kernelAction(ctx, http.MethodPost, id, "interrupt")
}

func (c *Client) kernelAction(ctx context.Context, method, id string, action ...string) error {
	base, token, err := c.target()
	if err != nil {
		return err
	}
	parts := append([]string{"api", "kernels", id}, action...)
	u, err := apiURL(base, token, parts...)
	if err != nil {
		return err
	}
	_, status, err := c.do(ctx, method, u, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &StatusError{StatusCode: status, Status: http.StatusText(status)}
	}
	return nil
}
