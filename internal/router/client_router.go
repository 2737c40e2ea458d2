// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/kernelBridge/internal/backend"
)

// ClientRouter applies the routing discipline directly over protocol
// clients, with no manager caches, events or readiness in between. It
// serves deployments where the remote backend is reached via bare API
// calls; classification is identical to the manager-level routers.
type ClientRouter struct {
	local  backend.KernelClient
	remote backend.KernelClient

	localSessions  backend.SessionClient
	remoteSessions backend.SessionClient

	specs SpecLookup
}

// NewClientRouter creates a client-level router. The session clients
// may be nil when only kernel operations are needed.
func NewClientRouter(local, remote backend.KernelClient, localSessions, remoteSessions backend.SessionClient, specs SpecLookup) *ClientRouter {
	return &ClientRouter{
		local:          local,
		remote:         remote,
		localSessions:  localSessions,
		remoteSessions: remoteSessions,
		specs:          specs,
	}
}

// Classify derives the owning backend for a kernel id from the local
// client's live enumeration.
func (r *ClientRouter) Classify(ctx context.Context, id string) (Location, error) {
	local, err := containsID(ctx, func(ctx context.Context) ([]string, error) {
		kernels, err := r.local.ListKernels(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(kernels))
		for i, k := range kernels {
			ids[i] = k.ID
		}
		return ids, nil
	}, id)
	if err != nil {
		return Remote, err
	}
	if local {
		return Local, nil
	}
	return Remote, nil
}

func (r *ClientRouter) client(loc Location) backend.KernelClient {
	if loc == Local {
		return r.local
	}
	return r.remote
}

// StartKernel starts a kernel, routed by spec name.
func (r *ClientRouter) StartKernel(ctx context.Context, opts backend.StartKernelOptions) (*backend.KernelModel, Location, error) {
	loc := classifyByName(r.specs, opts.Name)
	model, err := r.client(loc).StartKernel(ctx, opts)
	return model, loc, err
}

// ListKernels concatenates both clients' enumerations, degrading to the
// local subset when the remote call fails.
func (r *ClientRouter) ListKernels(ctx context.Context) ([]backend.KernelModel, error) {
	local, err := r.local.ListKernels(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := r.remote.ListKernels(ctx)
	if err != nil {
		log.Debugf("Remote kernel listing failed, serving local subset: %v", err)
		return local, nil
	}
	return append(local, remote...), nil
}

// GetKernel probes local first, then remote; nil with nil error when
// neither side knows the id.
func (r *ClientRouter) GetKernel(ctx context.Context, id string) (*backend.KernelModel, error) {
	model, err := r.local.GetKernel(ctx, id)
	if err != nil {
		return nil, err
	}
	if model != nil {
		return model, nil
	}
	model, err = r.remote.GetKernel(ctx, id)
	if err != nil {
		log.Debugf("Remote kernel lookup for %s failed: %v", id, err)
		return nil, nil
	}
	return model, nil
}

// DeleteKernel shuts down the kernel on whichever client owns the id.
func (r *ClientRouter) DeleteKernel(ctx context.Context, id string) error {
	return r.delegate(ctx, id, backend.KernelClient.DeleteKernel)
}

// RestartKernel restarts the kernel on whichever client owns the id.
func (r *ClientRouter) RestartKernel(ctx context.Context, id string) error {
	return r.delegate(ctx, id, backend.KernelClient.RestartKernel)
}

// InterruptKernel interrupts the kernel on whichever client owns the id.
func (r *ClientRouter) InterruptKernel(ctx context.Context, id string) error {
	return r.delegate(ctx, id, backend.KernelClient.InterruptKernel)
}

func (r *ClientRouter) delegate(ctx context.Context, id string, op func(backend.KernelClient, context.Context, string) error) error {
	loc, err := r.Classify(ctx, id)
	if err != nil {
		return err
	}
	return op(r.client(loc), ctx, id)
}

// StartSession starts a session, routed by its kernel's spec name.
func (r *ClientRouter) StartSession(ctx context.Context, opts backend.StartSessionOptions) (*backend.SessionModel, Location, error) {
	loc := classifyByName(r.specs, opts.Kernel.Name)
	if loc == Local {
		model, err := r.localSessions.StartSession(ctx, opts)
		return model, loc, err
	}
	model, err := r.remoteSessions.StartSession(ctx, opts)
	return model, loc, err
}

// ListSessions concatenates both clients' session enumerations,
// degrading to the local subset when the remote call fails.
func (r *ClientRouter) ListSessions(ctx context.Context) ([]backend.SessionModel, error) {
	local, err := r.localSessions.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := r.remoteSessions.ListSessions(ctx)
	if err != nil {
		log.Debugf("Remote session listing failed, serving local subset: %v", err)
		return local, nil
	}
	return append(local, remote...), nil
}

// DeleteSession shuts down the session on whichever client owns the id.
// Ownership is derived from the local client's live session list.
func (r *ClientRouter) DeleteSession(ctx context.Context, id string) error {
	local, err := containsID(ctx, func(ctx context.Context) ([]string, error) {
		sessions, err := r.localSessions.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(sessions))
		for i, s := range sessions {
			ids[i] = s.ID
		}
		return ids, nil
	}, id)
	if err != nil {
		return err
	}
	if local {
		return r.localSessions.DeleteSession(ctx, id)
	}
	return r.remoteSessions.DeleteSession(ctx, id)
}
