// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/kernelBridge/internal/backend"
)

type mockKernelClient struct {
	kernels []backend.KernelModel
	listErr error

	startCalls  int
	deleteCalls map[string]int
}

func newMockKernelClient(kernels ...backend.KernelModel) *mockKernelClient {
	return &mockKernelClient{kernels: kernels, deleteCalls: make(map[string]int)}
}

func (m *mockKernelClient) ListKernels(ctx context.Context) ([]backend.KernelModel, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.kernels, nil
}

func (m *mockKernelClient) StartKernel(ctx context.Context, opts backend.StartKernelOptions) (*backend.KernelModel, error) {
	m.startCalls++
	return &backend.KernelModel{ID: "new", Name: opts.Name}, nil
}

func (m *mockKernelClient) GetKernel(ctx context.Context, id string) (*backend.KernelModel, error) {
	for _, k := range m.kernels {
		if k.ID == id {
			model := k
			return &model, nil
		}
	}
	return nil, nil
}

func (m *mockKernelClient) DeleteKernel(ctx context.Context, id string) error {
	m.deleteCalls[id]++
	return nil
}

func (m *mockKernelClient) RestartKernel(ctx context.Context, id string) error   { return nil }
func (m *mockKernelClient) InterruptKernel(ctx context.Context, id string) error { return nil }

func TestClientRouterStartRoutesByName(t *testing.T) {
	local := newMockKernelClient()
	remote := newMockKernelClient()
	r := NewClientRouter(local, remote, nil, nil, stubSpecs{"echo": true})

	_, loc, err := r.StartKernel(context.Background(), backend.StartKernelOptions{Name: "echo"})
	require.NoError(t, err)
	assert.Equal(t, Local, loc)

	_, loc, err = r.StartKernel(context.Background(), backend.StartKernelOptions{Name: "scala"})
	require.NoError(t, err)
	assert.Equal(t, Remote, loc)

	assert.Equal(t, 1, local.startCalls)
	assert.Equal(t, 1, remote.startCalls)
}

func TestClientRouterDeleteRoutesByMembership(t *testing.T) {
	local := newMockKernelClient(backend.KernelModel{ID: "here"})
	remote := newMockKernelClient(backend.KernelModel{ID: "there"})
	r := NewClientRouter(local, remote, nil, nil, stubSpecs{})

	require.NoError(t, r.DeleteKernel(context.Background(), "here"))
	require.NoError(t, r.DeleteKernel(context.Background(), "there"))

	assert.Equal(t, 1, local.deleteCalls["here"])
	assert.Zero(t, remote.deleteCalls["here"])
	assert.Equal(t, 1, remote.deleteCalls["there"])
}

func TestClientRouterListDegradesToLocal(t *testing.T) {
	local := newMockKernelClient(backend.KernelModel{ID: "a"})
	remote := newMockKernelClient()
	remote.listErr = errors.New("connection refused")
	r := NewClientRouter(local, remote, nil, nil, stubSpecs{})

	kernels, err := r.ListKernels(context.Background())
	require.NoError(t, err)
	require.Len(t, kernels, 1)
	assert.Equal(t, "a", kernels[0].ID)
}

func TestClientRouterGetProbesLocalThenRemote(t *testing.T) {
	local := newMockKernelClient(backend.KernelModel{ID: "a", Name: "local-a"})
	remote := newMockKernelClient(backend.KernelModel{ID: "b", Name: "remote-b"})
	r := NewClientRouter(local, remote, nil, nil, stubSpecs{})

	model, err := r.GetKernel(context.Background(), "b")
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, "remote-b", model.Name)

	model, err = r.GetKernel(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, model)
}
