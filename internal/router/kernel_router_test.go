// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/kernelBridge/internal/backend"
)

// mockProvider implements backend.KernelProvider and counts every
// delegated operation.
type mockProvider struct {
	mu       sync.Mutex
	kernels  []backend.KernelModel
	failList error

	startCalls     int
	shutdownCalls  map[string]int
	restartCalls   map[string]int
	interruptCalls map[string]int
	refreshCalls   int
	refreshErr     error
	shutdownAllErr error
	allCalls       int

	handlers []func()
	ready    chan struct{}
}

func newMockProvider(kernels ...backend.KernelModel) *mockProvider {
	m := &mockProvider{
		kernels:        kernels,
		shutdownCalls:  make(map[string]int),
		restartCalls:   make(map[string]int),
		interruptCalls: make(map[string]int),
		ready:          make(chan struct{}),
	}
	close(m.ready)
	return m
}

func (m *mockProvider) Running(ctx context.Context) ([]backend.KernelModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	out := make([]backend.KernelModel, len(m.kernels))
	copy(out, m.kernels)
	return out, nil
}

func (m *mockProvider) StartNew(ctx context.Context, opts backend.StartKernelOptions) (*backend.KernelModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	model := backend.KernelModel{ID: "started-" + opts.Name, Name: opts.Name}
	m.kernels = append(m.kernels, model)
	return &model, nil
}

func (m *mockProvider) FindByID(ctx context.Context, id string) (*backend.KernelModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	for _, k := range m.kernels {
		if k.ID == id {
			model := k
			return &model, nil
		}
	}
	return nil, nil
}

func (m *mockProvider) Shutdown(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownCalls[id]++
	return nil
}

func (m *mockProvider) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allCalls++
	return m.shutdownAllErr
}

func (m *mockProvider) Restart(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restartCalls[id]++
	return nil
}

func (m *mockProvider) Interrupt(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interruptCalls[id]++
	return nil
}

func (m *mockProvider) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCalls++
	return m.refreshErr
}

func (m *mockProvider) OnRunningChanged(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
	return func() {}
}

func (m *mockProvider) fireRunningChanged() {
	m.mu.Lock()
	fns := make([]func(), len(m.handlers))
	copy(fns, m.handlers)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *mockProvider) IsReady() bool {
	select {
	case <-m.ready:
		return true
	default:
		return false
	}
}

func (m *mockProvider) Ready() <-chan struct{} { return m.ready }

type stubSpecs map[string]bool

func (s stubSpecs) Has(name string) bool { return s[name] }

func TestStartNewRoutesByName(t *testing.T) {
	local := newMockProvider()
	remote := newMockProvider()
	r := NewKernelRouter(local, remote, stubSpecs{"echo": true}, nil)
	defer r.Dispose()

	_, loc, err := r.StartNew(context.Background(), backend.StartKernelOptions{Name: "echo"})
	require.NoError(t, err)
	assert.Equal(t, Local, loc)

	_, loc, err = r.StartNew(context.Background(), backend.StartKernelOptions{Name: "python3"})
	require.NoError(t, err)
	assert.Equal(t, Remote, loc)

	assert.Equal(t, 1, local.startCalls)
	assert.Equal(t, 1, remote.startCalls)
}

func TestIDOperationsDelegateExactlyOnce(t *testing.T) {
	local := newMockProvider(backend.KernelModel{ID: "k-local", Name: "echo"})
	remote := newMockProvider(backend.KernelModel{ID: "k-remote", Name: "python3"})
	r := NewKernelRouter(local, remote, stubSpecs{}, nil)
	defer r.Dispose()

	ctx := context.Background()
	require.NoError(t, r.Shutdown(ctx, "k-local"))
	require.NoError(t, r.Restart(ctx, "k-local"))
	require.NoError(t, r.Interrupt(ctx, "k-local"))

	assert.Equal(t, 1, local.shutdownCalls["k-local"])
	assert.Equal(t, 1, local.restartCalls["k-local"])
	assert.Equal(t, 1, local.interruptCalls["k-local"])
	assert.Zero(t, remote.shutdownCalls["k-local"])
	assert.Zero(t, remote.restartCalls["k-local"])
	assert.Zero(t, remote.interruptCalls["k-local"])

	// Ids absent from the local enumeration fall back to remote.
	require.NoError(t, r.Shutdown(ctx, "k-unknown"))
	assert.Equal(t, 1, remote.shutdownCalls["k-unknown"])
	assert.Zero(t, local.shutdownCalls["k-unknown"])
}

func TestRunningMergesBothBackends(t *testing.T) {
	local := newMockProvider(backend.KernelModel{ID: "a"})
	remote := newMockProvider(backend.KernelModel{ID: "b"}, backend.KernelModel{ID: "c"})
	r := NewKernelRouter(local, remote, stubSpecs{}, nil)
	defer r.Dispose()

	kernels, err := r.Running(context.Background())
	require.NoError(t, err)
	require.Len(t, kernels, 3)
	assert.Equal(t, "a", kernels[0].ID)
}

func TestRunningDegradesToLocalOnRemoteFailure(t *testing.T) {
	local := newMockProvider(backend.KernelModel{ID: "a"})
	remote := newMockProvider()
	remote.failList = errors.New("connection refused")
	r := NewKernelRouter(local, remote, stubSpecs{}, nil)
	defer r.Dispose()

	kernels, err := r.Running(context.Background())
	require.NoError(t, err)
	require.Len(t, kernels, 1)
	assert.Equal(t, "a", kernels[0].ID)
}

func TestShutdownAllIsBestEffortOnRemote(t *testing.T) {
	local := newMockProvider()
	remote := newMockProvider()
	remote.shutdownAllErr = errors.New("gateway timeout")
	r := NewKernelRouter(local, remote, stubSpecs{}, nil)
	defer r.Dispose()

	require.NoError(t, r.ShutdownAll(context.Background()))
	assert.Equal(t, 1, local.allCalls)
	assert.Equal(t, 1, remote.allCalls)
}

func TestRefreshRunningRequiresBothSides(t *testing.T) {
	local := newMockProvider()
	remote := newMockProvider()
	r := NewKernelRouter(local, remote, stubSpecs{}, nil)
	defer r.Dispose()

	require.NoError(t, r.RefreshRunning(context.Background()))
	assert.Equal(t, 1, local.refreshCalls)
	assert.Equal(t, 1, remote.refreshCalls)

	remote.refreshErr = errors.New("connection refused")
	assert.Error(t, r.RefreshRunning(context.Background()))
}

func TestFindByIDProbesLocalFirst(t *testing.T) {
	local := newMockProvider(backend.KernelModel{ID: "x", Name: "local-x"})
	remote := newMockProvider(backend.KernelModel{ID: "x", Name: "remote-x"}, backend.KernelModel{ID: "y", Name: "remote-y"})
	r := NewKernelRouter(local, remote, stubSpecs{}, nil)
	defer r.Dispose()

	model, err := r.FindByID(context.Background(), "x")
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, "local-x", model.Name)

	model, err = r.FindByID(context.Background(), "y")
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, "remote-y", model.Name)

	model, err = r.FindByID(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Nil(t, model)
}

func TestFindByIDDegradesOnRemoteFailure(t *testing.T) {
	local := newMockProvider()
	remote := newMockProvider()
	remote.failList = errors.New("connection refused")
	r := NewKernelRouter(local, remote, stubSpecs{}, nil)
	defer r.Dispose()

	model, err := r.FindByID(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, model)
}

func TestIsLocalKernelPredicate(t *testing.T) {
	local := newMockProvider(backend.KernelModel{ID: "mine"})
	remote := newMockProvider(backend.KernelModel{ID: "theirs"})
	r := NewKernelRouter(local, remote, stubSpecs{}, nil)
	defer r.Dispose()

	isLocal, err := r.IsLocalKernel(context.Background(), "mine")
	require.NoError(t, err)
	assert.True(t, isLocal)

	isLocal, err = r.IsLocalKernel(context.Background(), "theirs")
	require.NoError(t, err)
	assert.False(t, isLocal)
}

func TestChangeEventsReemitMergedSnapshot(t *testing.T) {
	local := newMockProvider(backend.KernelModel{ID: "a"})
	remote := newMockProvider(backend.KernelModel{ID: "b"})
	r := NewKernelRouter(local, remote, stubSpecs{}, nil)
	defer r.Dispose()

	snapshots := make(chan []backend.KernelModel, 4)
	r.OnRunningChanged(func(kernels []backend.KernelModel) {
		snapshots <- kernels
	})

	local.fireRunningChanged()
	select {
	case snap := <-snapshots:
		require.Len(t, snap, 2)
	case <-time.After(time.Second):
		t.Fatal("no merged snapshot emitted")
	}

	remote.fireRunningChanged()
	select {
	case snap := <-snapshots:
		require.Len(t, snap, 2)
	case <-time.After(time.Second):
		t.Fatal("no merged snapshot emitted")
	}
}

func TestReadinessRequiresBothBackends(t *testing.T) {
	local := newMockProvider()
	remote := newMockProvider()
	remote.ready = make(chan struct{}) // not ready yet

	r := NewKernelRouter(local, remote, stubSpecs{}, nil)
	defer r.Dispose()

	assert.False(t, r.IsReady())
	select {
	case <-r.Ready():
		t.Fatal("combined ready resolved before both backends")
	case <-time.After(50 * time.Millisecond):
	}

	close(remote.ready)
	select {
	case <-r.Ready():
	case <-time.After(time.Second):
		t.Fatal("combined ready did not resolve")
	}
	assert.True(t, r.IsReady())
}

func TestDisposeStopsEmission(t *testing.T) {
	local := newMockProvider()
	remote := newMockProvider()
	r := NewKernelRouter(local, remote, stubSpecs{}, nil)

	emitted := 0
	r.OnRunningChanged(func([]backend.KernelModel) { emitted++ })

	r.Dispose()
	r.Dispose() // idempotent
	local.fireRunningChanged()
	assert.Zero(t, emitted)
}
