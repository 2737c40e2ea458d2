// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/traylinx/kernelBridge/internal/backend"
	"github.com/traylinx/kernelBridge/internal/events"
)

// snapshotTimeout bounds the running-list queries made while re-deriving
// a merged snapshot for change notifications.
const snapshotTimeout = 10 * time.Second

// KernelRouter is the unified kernel manager over the local engine and
// the remote server. Exactly one backend is asked to execute any given
// operation.
type KernelRouter struct {
	local  backend.KernelProvider
	remote backend.KernelProvider
	specs  SpecLookup
	bus    *events.Bus

	mu            sync.RWMutex
	handlers      map[int]func([]backend.KernelModel)
	nextHandlerID int
	disposed      bool
	unsubs        []func()

	ready     chan struct{}
	readyOnce sync.Once
}

// NewKernelRouter creates a router and subscribes to both backends'
// change notifications. Each native notification is answered by
// re-querying the merged running view and re-emitting that snapshot;
// raw per-backend deltas are never forwarded. Handlers must therefore
// tolerate at-least-once delivery of identical snapshots.
func NewKernelRouter(local, remote backend.KernelProvider, specs SpecLookup, bus *events.Bus) *KernelRouter {
	r := &KernelRouter{
		local:    local,
		remote:   remote,
		specs:    specs,
		bus:      bus,
		handlers: make(map[int]func([]backend.KernelModel)),
		ready:    make(chan struct{}),
	}
	r.unsubs = append(r.unsubs,
		local.OnRunningChanged(r.emitMerged),
		remote.OnRunningChanged(r.emitMerged),
	)
	go r.awaitReady()
	return r
}

func (r *KernelRouter) awaitReady() {
	<-r.local.Ready()
	<-r.remote.Ready()
	r.readyOnce.Do(func() { close(r.ready) })
}

// IsReady reports whether both backends report ready.
func (r *KernelRouter) IsReady() bool {
	return r.local.IsReady() && r.remote.IsReady()
}

// Ready returns a channel closed once both backends are ready.
func (r *KernelRouter) Ready() <-chan struct{} { return r.ready }

// Classify derives the owning backend for an existing kernel id from
// the engine's authoritative running enumeration. Unknown ids classify
// as Remote: the remote backend is the default for ids the engine does
// not own.
func (r *KernelRouter) Classify(ctx context.Context, id string) (Location, error) {
	local, err := containsID(ctx, r.localIDs, id)
	if err != nil {
		return Remote, err
	}
	if local {
		return Local, nil
	}
	return Remote, nil
}

// IsLocalKernel reports whether the running kernel id is served by the
// in-process engine. This is the predicate the promotion workflow uses
// before offering to relaunch a session remotely.
func (r *KernelRouter) IsLocalKernel(ctx context.Context, id string) (bool, error) {
	loc, err := r.Classify(ctx, id)
	return loc == Local, err
}

func (r *KernelRouter) localIDs(ctx context.Context) ([]string, error) {
	kernels, err := r.local.Running(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(kernels))
	for i, k := range kernels {
		ids[i] = k.ID
	}
	return ids, nil
}

func (r *KernelRouter) provider(loc Location) backend.KernelProvider {
	if loc == Local {
		return r.local
	}
	return r.remote
}

// StartNew starts a kernel, routed by spec name: a name present in the
// merged registry is served by the engine, anything else by the remote
// server. The chosen backend's error is returned verbatim.
func (r *KernelRouter) StartNew(ctx context.Context, opts backend.StartKernelOptions) (*backend.KernelModel, Location, error) {
	loc := classifyByName(r.specs, opts.Name)
	model, err := r.provider(loc).StartNew(ctx, opts)
	if err != nil {
		return nil, loc, err
	}
	log.Infof("Routed kernel start %q to %s backend (id %s)", opts.Name, loc, model.ID)
	return model, loc, nil
}

// ConnectTo resolves a running kernel for connection, routed by id.
func (r *KernelRouter) ConnectTo(ctx context.Context, id string) (*backend.KernelModel, Location, error) {
	loc, err := r.Classify(ctx, id)
	if err != nil {
		return nil, loc, err
	}
	model, err := r.provider(loc).FindByID(ctx, id)
	return model, loc, err
}

// Shutdown stops the kernel on whichever backend owns the id.
func (r *KernelRouter) Shutdown(ctx context.Context, id string) error {
	return r.delegate(ctx, id, backend.KernelProvider.Shutdown)
}

// Restart restarts the kernel on whichever backend owns the id.
func (r *KernelRouter) Restart(ctx context.Context, id string) error {
	return r.delegate(ctx, id, backend.KernelProvider.Restart)
}

// Interrupt interrupts the kernel on whichever backend owns the id.
func (r *KernelRouter) Interrupt(ctx context.Context, id string) error {
	return r.delegate(ctx, id, backend.KernelProvider.Interrupt)
}

func (r *KernelRouter) delegate(ctx context.Context, id string, op func(backend.KernelProvider, context.Context, string) error) error {
	loc, err := r.Classify(ctx, id)
	if err != nil {
		return err
	}
	return op(r.provider(loc), ctx, id)
}

// Running merges both backends' live enumerations. Ids are globally
// unique by construction, so concatenation needs no deduplication. A
// remote failure degrades the result to the local subset instead of
// failing the call.
func (r *KernelRouter) Running(ctx context.Context) ([]backend.KernelModel, error) {
	local, err := r.local.Running(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := r.remote.Running(ctx)
	if err != nil {
		log.Debugf("Remote kernel enumeration failed, serving local subset: %v", err)
		return local, nil
	}
	return append(local, remote...), nil
}

// ShutdownAll stops both backends' full populations. The remote side is
// best-effort: its failure must not keep local cleanup from completing.
func (r *KernelRouter) ShutdownAll(ctx context.Context) error {
	if err := r.remote.ShutdownAll(ctx); err != nil {
		log.Warnf("Remote shutdown-all failed, continuing with local cleanup: %v", err)
	}
	return r.local.ShutdownAll(ctx)
}

// RefreshRunning forces both backends current, concurrently. Both must
// succeed: unlike the read paths, the caller explicitly asked for a
// current view of both sides.
func (r *KernelRouter) RefreshRunning(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.local.Refresh(gctx) })
	g.Go(func() error { return r.remote.Refresh(gctx) })
	return g.Wait()
}

// FindByID probes local first, then remote; the first hit wins. A nil
// model with nil error means neither backend knows the id. A remote
// probe failure degrades to not-found on this read path.
func (r *KernelRouter) FindByID(ctx context.Context, id string) (*backend.KernelModel, error) {
	model, err := r.local.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if model != nil {
		return model, nil
	}
	model, err = r.remote.FindByID(ctx, id)
	if err != nil {
		log.Debugf("Remote kernel lookup for %s failed: %v", id, err)
		return nil, nil
	}
	return model, nil
}

// OnRunningChanged registers fn to receive merged running snapshots.
func (r *KernelRouter) OnRunningChanged(fn func([]backend.KernelModel)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextHandlerID++
	id := r.nextHandlerID
	r.handlers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, id)
	}
}

// emitMerged re-derives the merged running view and emits it to all
// handlers and the bus.
func (r *KernelRouter) emitMerged() {
	r.mu.RLock()
	if r.disposed {
		r.mu.RUnlock()
		return
	}
	fns := make([]func([]backend.KernelModel), 0, len(r.handlers))
	for _, fn := range r.handlers {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	snapshot, err := r.Running(ctx)
	if err != nil {
		log.Debugf("Skipping running-changed emission, snapshot failed: %v", err)
		return
	}

	for _, fn := range fns {
		fn(snapshot)
	}
	if r.bus != nil {
		r.bus.PublishAsync(&events.Event{
			Type: events.KernelsChanged,
			Data: map[string]interface{}{"count": len(snapshot)},
		})
	}
}

// Dispose unsubscribes from both backends. Idempotent. Lifecycle
// ownership of running kernels stays with their backends.
func (r *KernelRouter) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
