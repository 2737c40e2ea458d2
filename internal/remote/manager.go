// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/kernelBridge/internal/backend"
	"github.com/traylinx/kernelBridge/internal/events"
)

// Manager presents the remote server as a backend. It keeps a cached
// enumeration of running kernels and sessions, refreshed by the poller
// or on demand, and fires change handlers when the cached sets change.
//
// Readiness is marked after the first refresh attempt completes,
// successful or not: an unreachable remote server must not keep the
// whole bridge from becoming ready, it only degrades the merged view.
type Manager struct {
	client *Client
	bus    *events.Bus

	mu              sync.RWMutex
	kernels         []backend.KernelModel
	sessions        []backend.SessionModel
	kernelHandlers  map[int]func()
	sessionHandlers map[int]func()
	nextHandlerID   int

	ready     chan struct{}
	readyOnce sync.Once
}

// NewManager creates a manager over client. The bus is optional; when
// set, refresh failures publish ConnectionFailure events.
func NewManager(client *Client, bus *events.Bus) *Manager {
	return &Manager{
		client:          client,
		bus:             bus,
		kernelHandlers:  make(map[int]func()),
		sessionHandlers: make(map[int]func()),
		ready:           make(chan struct{}),
	}
}

// Client returns the underlying protocol client.
func (m *Manager) Client() *Client { return m.client }

// Running returns a live enumeration of the server's kernels. With no
// remote server configured the remote population is empty, not an
// error.
func (m *Manager) Running(ctx context.Context) ([]backend.KernelModel, error) {
	kernels, err := m.client.ListKernels(ctx)
	if errors.Is(err, ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sortKernels(kernels)
	m.mu.Lock()
	m.kernels = kernels
	m.mu.Unlock()
	return kernels, nil
}

// StartNew starts a kernel on the remote server.
func (m *Manager) StartNew(ctx context.Context, opts backend.StartKernelOptions) (*backend.KernelModel, error) {
	model, err := m.client.StartKernel(ctx, opts)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.kernels = append(m.kernels, *model)
	sortKernels(m.kernels)
	m.mu.Unlock()
	m.notify(m.kernelHandlers)
	return model, nil
}

// FindByID probes the server for id; nil result means unknown id.
func (m *Manager) FindByID(ctx context.Context, id string) (*backend.KernelModel, error) {
	model, err := m.client.GetKernel(ctx, id)
	if errors.Is(err, ErrNotConfigured) {
		return nil, nil
	}
	return model, err
}

// Shutdown stops the kernel with the given id.
func (m *Manager) Shutdown(ctx context.Context, id string) error {
	if err := m.client.DeleteKernel(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	m.kernels = removeKernel(m.kernels, id)
	m.mu.Unlock()
	m.notify(m.kernelHandlers)
	return nil
}

// ShutdownAll enumerates and stops every remote kernel, collecting
// individual failures.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	kernels, err := m.Running(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, k := range kernels {
		if err := m.client.DeleteKernel(ctx, k.ID); err != nil {
			errs = append(errs, err)
		}
	}
	m.mu.Lock()
	m.kernels = nil
	m.mu.Unlock()
	m.notify(m.kernelHandlers)
	return errors.Join(errs...)
}

// Restart restarts the kernel with the given id.
func (m *Manager) Restart(ctx context.Context, id string) error {
	return m.client.RestartKernel(ctx, id)
}

// Interrupt interrupts the kernel with the given id.
func (m *Manager) Interrupt(ctx context.Context, id string) error {
	return m.client.InterruptKernel(ctx, id)
}

// Refresh brings the cached kernel enumeration current. Unlike the
// read paths, a failure here is returned: the caller asked to force
// the view current and needs to know it is not.
func (m *Manager) Refresh(ctx context.Context) error {
	defer m.markReady()

	kernels, err := m.client.ListKernels(ctx)
	if errors.Is(err, ErrNotConfigured) {
		kernels = nil
	} else if err != nil {
		m.reportFailure(err)
		return err
	}
	sortKernels(kernels)

	m.mu.Lock()
	changed := !reflect.DeepEqual(m.kernels, kernels)
	m.kernels = kernels
	m.mu.Unlock()
	if changed {
		m.notify(m.kernelHandlers)
	}
	return nil
}

// OnRunningChanged registers fn for remote kernel set changes.
func (m *Manager) OnRunningChanged(fn func()) (unsubscribe func()) {
	return m.register(m.kernelHandlers, fn)
}

// IsReady reports whether the first refresh attempt has completed.
func (m *Manager) IsReady() bool {
	select {
	case <-m.ready:
		return true
	default:
		return false
	}
}

// Ready returns a channel closed once the first refresh attempt has
// completed.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

func (m *Manager) markReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

func (m *Manager) reportFailure(err error) {
	log.Debugf("Remote server unreachable: %v", err)
	if m.bus != nil {
		m.bus.PublishAsync(&events.Event{
			Type: events.ConnectionFailure,
			Data: map[string]interface{}{"error": err.Error()},
		})
	}
}

func (m *Manager) register(handlers map[int]func(), fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHandlerID++
	id := m.nextHandlerID
	handlers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(handlers, id)
	}
}

func (m *Manager) notify(handlers map[int]func()) {
	m.mu.RLock()
	fns := make([]func(), 0, len(handlers))
	for _, fn := range handlers {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func sortKernels(kernels []backend.KernelModel) {
	sort.Slice(kernels, func(i, j int) bool { return kernels[i].ID < kernels[j].ID })
}

func removeKernel(kernels []backend.KernelModel, id string) []backend.KernelModel {
	out := kernels[:0]
	for _, k := range kernels {
		if k.ID != id {
			out = append(out, k)
		}
	}
	return out
}
