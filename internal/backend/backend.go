// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package backend defines the contracts the routing layer requires from
// kernel-execution backends. Two implementations exist: the in-process
// engine (internal/engine) and the Jupyter-protocol remote server
// (internal/remote). The routers never depend on a concrete backend.
package backend

import (
	"context"
)

// Mode selects which backends are consulted by the bridge.
type Mode string

const (
	// ModeHybrid consults a true local Jupyter server in addition to the
	// in-process engine and any configured remote server.
	ModeHybrid Mode = "hybrid"
	// ModeRemote fills the non-engine slot only with the user-configured
	// remote server.
	ModeRemote Mode = "remote"
)

// KernelModel is the backend-supplied description of a running kernel.
// The id is assigned by the owning backend and is never reused while the
// kernel is running; the bridge never generates kernel ids itself.
type KernelModel struct {
	// ID is the backend-assigned, globally unique kernel identifier.
	ID string `json:"id"`
	// Name is the kernel spec name this kernel was started from.
	Name string `json:"name"`
	// LastActivity is the ISO8601 timestamp of the last kernel activity.
	LastActivity string `json:"last_activity,omitempty"`
	// ExecutionState is the kernel's reported state (starting/idle/busy/dead).
	ExecutionState string `json:"execution_state,omitempty"`
	// Connections is the number of open channel connections to the kernel.
	Connections int `json:"connections,omitempty"`
}

// SessionModel is the backend-supplied description of a running session.
type SessionModel struct {
	// ID is the backend-assigned, globally unique session identifier.
	ID string `json:"id"`
	// Path is the notebook or console path the session is bound to.
	Path string `json:"path"`
	// Name is the user-visible session name.
	Name string `json:"name"`
	// Type is the session type (notebook/console/file).
	Type string `json:"type"`
	// Kernel describes the kernel serving this session.
	Kernel KernelModel `json:"kernel"`
}

// StartKernelOptions carries the parameters for starting a new kernel.
type StartKernelOptions struct {
	// Name is the kernel spec name to start. Routing is decided from it.
	Name string `json:"name"`
	// Env holds additional environment variables for the kernel process.
	Env map[string]string `json:"env,omitempty"`
}

// StartSessionOptions carries the parameters for starting a new session.
type StartSessionOptions struct {
	Path   string             `json:"path"`
	Name   string             `json:"name"`
	Type   string             `json:"type"`
	Kernel StartKernelOptions `json:"kernel"`
}

// KernelProvider is a backend that owns kernel lifecycles. Running() is
// authoritative for membership: an id is "owned" by this backend exactly
// when it appears in Running().
type KernelProvider interface {
	// Running returns the backend's current running-kernel enumeration.
	Running(ctx context.Context) ([]KernelModel, error)
	// StartNew starts a kernel and returns its model.
	StartNew(ctx context.Context, opts StartKernelOptions) (*KernelModel, error)
	// FindByID returns the kernel model for id, or nil (with nil error)
	// when the backend does not know the id.
	FindByID(ctx context.Context, id string) (*KernelModel, error)
	// Shutdown stops the kernel with the given id.
	Shutdown(ctx context.Context, id string) error
	// ShutdownAll stops every kernel the backend owns.
	ShutdownAll(ctx context.Context) error
	// Restart restarts the kernel with the given id.
	Restart(ctx context.Context, id string) error
	// Interrupt interrupts the kernel with the given id.
	Interrupt(ctx context.Context, id string) error
	// Refresh forces the backend to bring its running enumeration current.
	Refresh(ctx context.Context) error
	// OnRunningChanged registers fn to run whenever the backend's running
	// set changes. The returned function unregisters it.
	OnRunningChanged(fn func()) (unsubscribe func())
	// IsReady reports whether the backend finished its initial load.
	IsReady() bool
	// Ready returns a channel closed once the backend is ready.
	Ready() <-chan struct{}
}

// SessionProvider is a backend that owns session lifecycles, one layer
// above kernels. Membership discipline matches KernelProvider.
type SessionProvider interface {
	RunningSessions(ctx context.Context) ([]SessionModel, error)
	StartSession(ctx context.Context, opts StartSessionOptions) (*SessionModel, error)
	FindSessionByID(ctx context.Context, id string) (*SessionModel, error)
	ShutdownSession(ctx context.Context, id string) error
	ShutdownAllSessions(ctx context.Context) error
	RefreshSessions(ctx context.Context) error
	OnSessionsChanged(fn func()) (unsubscribe func())
}

// KernelClient is the protocol-client shape of a kernel backend: direct
// calls with no cache, no events and no readiness gating. The client
// router uses it when the remote side is reached via bare API calls
// rather than a full manager.
type KernelClient interface {
	ListKernels(ctx context.Context) ([]KernelModel, error)
	StartKernel(ctx context.Context, opts StartKernelOptions) (*KernelModel, error)
	GetKernel(ctx context.Context, id string) (*KernelModel, error)
	DeleteKernel(ctx context.Context, id string) error
	RestartKernel(ctx context.Context, id string) error
	InterruptKernel(ctx context.Context, id string) error
}

// SessionClient is the protocol-client shape of a session backend.
type SessionClient interface {
	ListSessions(ctx context.Context) ([]SessionModel, error)
	StartSession(ctx context.Context, opts StartSessionOptions) (*SessionModel, error)
	GetSession(ctx context.Context, id string) (*SessionModel, error)
	DeleteSession(ctx context.Context, id string) error
}

// ConfigProvider supplies the mutable bridge configuration. Getters are
// evaluated on every call, never cached at construction, so a user
// change takes effect on the next operation without reconstructing
// routers or clients.
type ConfigProvider interface {
	// Mode returns the operating mode, fixed at process start.
	Mode() Mode
	// RemoteBaseURL returns the user-configured remote server base URL,
	// empty when no remote server is configured.
	RemoteBaseURL() string
	// RemoteToken returns the bearer token for the remote server, empty
	// when none is configured.
	RemoteToken() string
	// RemoteConnected reports whether the user marked the remote server
	// as connected.
	RemoteConnected() bool
	// LocalServerURL returns the base URL of a true local Jupyter server
	// consulted in hybrid mode, empty when none is configured.
	LocalServerURL() string
	// OnChange registers fn to run after any configuration update. The
	// returned function unregisters it.
	OnChange(fn func()) (unsubscribe func())
}
