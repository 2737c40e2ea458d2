// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/traylinx/kernelBridge/internal/backend"
	"github.com/traylinx/kernelBridge/internal/events"
)

// SessionRouter applies the kernel routing discipline one layer up, for
// sessions. Session creation routes by the requested kernel's spec
// name, so a session's kernel is itself routed; every id-addressed
// operation routes by live membership in the engine's own session
// enumeration.
type SessionRouter struct {
	local  backend.SessionProvider
	remote backend.SessionProvider
	specs  SpecLookup
	bus    *events.Bus

	mu            sync.RWMutex
	handlers      map[int]func([]backend.SessionModel)
	nextHandlerID int
	disposed      bool
	unsubs        []func()
}

// NewSessionRouter creates a session router and subscribes to both
// backends' session change notifications, re-emitting merged snapshots.
func NewSessionRouter(local, remote backend.SessionProvider, specs SpecLookup, bus *events.Bus) *SessionRouter {
	r := &SessionRouter{
		local:    local,
		remote:   remote,
		specs:    specs,
		bus:      bus,
		handlers: make(map[int]func([]backend.SessionModel)),
	}
	r.unsubs = append(r.unsubs,
		local.OnSessionsChanged(r.emitMerged),
		remote.OnSessionsChanged(r.emitMerged),
	)
	return r
}

// Classify derives the owning backend for an existing session id from
// the engine's authoritative session enumeration.
func (r *SessionRouter) Classify(ctx context.Context, id string) (Location, error) {
	local, err := containsID(ctx, r.localIDs, id)
	if err != nil {
		return Remote, err
	}
	if local {
		return Local, nil
	}
	return Remote, nil
}

func (r *SessionRouter) localIDs(ctx context.Context) ([]string, error) {
	sessions, err := r.local.RunningSessions(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids, nil
}

func (r *SessionRouter) provider(loc Location) backend.SessionProvider {
	if loc == Local {
		return r.local
	}
	return r.remote
}

// StartSession starts a session, routed by its kernel's spec name.
func (r *SessionRouter) StartSession(ctx context.Context, opts backend.StartSessionOptions) (*backend.SessionModel, Location, error) {
	loc := classifyByName(r.specs, opts.Kernel.Name)
	model, err := r.provider(loc).StartSession(ctx, opts)
	if err != nil {
		return nil, loc, err
	}
	log.Infof("Routed session start %q to %s backend (id %s)", opts.Path, loc, model.ID)
	return model, loc, nil
}

// Running merges both backends' live session enumerations, degrading to
// the local subset when the remote side fails.
func (r *SessionRouter) Running(ctx context.Context) ([]backend.SessionModel, error) {
	local, err := r.local.RunningSessions(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := r.remote.RunningSessions(ctx)
	if err != nil {
		log.Debugf("Remote session enumeration failed, serving local subset: %v", err)
		return local, nil
	}
	return append(local, remote...), nil
}

// Shutdown stops the session on whichever backend owns the id.
func (r *SessionRouter) Shutdown(ctx context.Context, id string) error {
	loc, err := r.Classify(ctx, id)
	if err != nil {
		return err
	}
	return r.provider(loc).ShutdownSession(ctx, id)
}

// ShutdownAll stops both backends' session populations, remote side
// best-effort.
func (r *SessionRouter) ShutdownAll(ctx context.Context) error {
	if err := r.remote.ShutdownAllSessions(ctx); err != nil {
		log.Warnf("Remote session shutdown-all failed, continuing with local cleanup: %v", err)
	}
	return r.local.ShutdownAllSessions(ctx)
}

// RefreshRunning forces both backends' session views current; both
// must succeed.
func (r *SessionRouter) RefreshRunning(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.local.RefreshSessions(gctx) })
	g.Go(func() error { return r.remote.RefreshSessions(gctx) })
	return g.Wait()
}

// FindByID probes local first, then remote; nil with nil error means
// the id is unknown to both.
func (r *SessionRouter) FindByID(ctx context.Context, id string) (*backend.SessionModel, error) {
	model, err := r.local.FindSessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if model != nil {
		return model, nil
	}
	model, err = r.remote.FindSessionByID(ctx, id)
	if err != nil {
		log.Debugf("Remote session lookup for %s failed: %v", id, err)
		return nil, nil
	}
	return model, nil
}

// OnRunningChanged registers fn to receive merged session snapshots.
func (r *SessionRouter) OnRunningChanged(fn func([]backend.SessionModel)) (unsubscribe func()) {
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

func (r *SessionRouter) emitMerged() {
	r.mu.RLock()
	if r.disposed {
		r.mu.RUnlock()
		return
	}
	fns := make([]func([]backend.SessionModel), 0, len(r.handlers))
	for _, fn := range r.handlers {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	snapshot, err := r.Running(ctx)
	if err != nil {
		log.Debugf("Skipping sessions-changed emission, snapshot failed: %v", err)
		return
	}

	for _, fn := range fns {
		fn(snapshot)
	}
	if r.bus != nil {
		r.bus.PublishAsync(&events.Event{
			Type: events.SessionsChanged,
			Data: map[string]interface{}{"count": len(snapshot)},
		})
	}
}

// Dispose unsubscribes from both backends. Idempotent.
func (r *SessionRouter) Dispose() {
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
