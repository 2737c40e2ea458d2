// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/kernelBridge/internal/backend"
)

// RunningSessions returns the engine's current session enumeration.
func (e *Engine) RunningSessions(ctx context.Context) ([]backend.SessionModel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]backend.SessionModel, 0, len(e.sessions))
	for _, sess := range e.sessions {
		s := *sess
		if inst, ok := e.kernels[s.Kernel.ID]; ok {
			s.Kernel = inst.model
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// StartSession starts a session backed by a newly started engine
// kernel.
func (e *Engine) StartSession(ctx context.Context, opts backend.StartSessionOptions) (*backend.SessionModel, error) {
	name := opts.Kernel.Name
	if name == "" {
		name = e.specs.Default
	}
	kernel, err := e.StartNew(ctx, backend.StartKernelOptions{Name: name, Env: opts.Kernel.Env})
	if err != nil {
		return nil, fmt.Errorf("failed to start session kernel: %w", err)
	}

	sess := &backend.SessionModel{
		ID:     uuid.NewString(),
		Path:   opts.Path,
		Name:   opts.Name,
		Type:   opts.Type,
		Kernel: *kernel,
	}
	e.mu.Lock()
	e.sessions[sess.ID] = sess
	model := *sess
	e.mu.Unlock()

	log.Infof("Started in-process session %s (%s)", sess.ID, opts.Path)
	e.notifySessions()
	return &model, nil
}

// FindSessionByID returns the session model for id, or nil when the
// engine does not own it.
func (e *Engine) FindSessionByID(ctx context.Context, id string) (*backend.SessionModel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if sess, ok := e.sessions[id]; ok {
		s := *sess
		if inst, ok := e.kernels[s.Kernel.ID]; ok {
			s.Kernel = inst.model
		}
		return &s, nil
	}
	return nil, nil
}

// ShutdownSession stops a session and the kernel serving it.
func (e *Engine) ShutdownSession(ctx context.Context, id string) error {
	e.mu.Lock()
	sess, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("no running session with id %q", id)
	}
	delete(e.sessions, id)
	kernelID := sess.Kernel.ID
	e.mu.Unlock()

	if err := e.Shutdown(ctx, kernelID); err != nil {
		// The kernel may already be gone; the session removal stands.
		log.Debugf("Session %s kernel shutdown: %v", id, err)
	}
	e.notifySessions()
	return nil
}

// ShutdownAllSessions stops every session and its kernel.
func (e *Engine) ShutdownAllSessions(ctx context.Context) error {
	e.mu.RLock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	for _, id := range ids {
		if err := e.ShutdownSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RefreshSessions is a no-op: the engine's maps are always current.
func (e *Engine) RefreshSessions(ctx context.Context) error {
	return nil
}

// OnSessionsChanged registers fn for session set changes.
func (e *Engine) OnSessionsChanged(fn func()) (unsubscribe func()) {
	return e.register(e.sessionHandlers, fn)
}
