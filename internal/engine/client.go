// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"

	"github.com/traylinx/kernelBridge/internal/backend"
)

// Client adapts the engine to the protocol-client contracts
// (backend.KernelClient, backend.SessionClient) used by the client
// router. The adapter is stateless; the engine remains the owner of
// every lifecycle.
type Client struct {
	engine *Engine
}

// Client returns the engine's protocol-client adapter.
func (e *Engine) Client() *Client {
	return &Client{engine: e}
}

func (c *Client) ListKernels(ctx context.Context) ([]backend.KernelModel, error) {
	return c.engine.Running(ctx)
}

func (c *Client) StartKernel(ctx context.Context, opts backend.StartKernelOptions) (*backend.KernelModel, error) {
	return c.engine.StartNew(ctx, opts)
}

func (c *Client) GetKernel(ctx context.Context, id string) (*backend.KernelModel, error) {
	return c.engine.FindByID(ctx, id)
}

func (c *Client) DeleteKernel(ctx context.Context, id string) error {
	return c.engine.Shutdown(ctx, id)
}

func (c *Client) RestartKernel(ctx context.Context, id string) error {
	return c.engine.Restart(ctx, id)
}

func (c *Client) InterruptKernel(ctx context.Context, id string) error {
	return c.engine.Interrupt(ctx, id)
}

func (c *Client) ListSessions(ctx context.Context) ([]backend.SessionModel, error) {
	return c.engine.RunningSessions(ctx)
}

func (c *Client) StartSession(ctx context.Context, opts backend.StartSessionOptions) (*backend.SessionModel, error) {
	return c.engine.StartSession(ctx, opts)
}

func (c *Client) GetSession(ctx context.Context, id string) (*backend.SessionModel, error) {
	return c.engine.FindSessionByID(ctx, id)
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.engine.ShutdownSession(ctx, id)
}
