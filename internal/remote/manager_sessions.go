// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"reflect"
	"sort"

	"github.com/traylinx/kernelBridge/internal/backend"
)

// RunningSessions returns a live enumeration of the server's sessions.
func (m *Manager) RunningSessions(ctx context.Context) ([]backend.SessionModel, error) {
	sessions, err := m.client.ListSessions(ctx)
	if errors.Is(err, ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sortSessions(sessions)
	m.mu.Lock()
	m.sessions = sessions
	m.mu.Unlock()
	return sessions, nil
}

// StartSession starts a session on the remote server.
func (m *Manager) StartSession(ctx context.Context, opts backend.StartSessionOptions) (*backend.SessionModel, error) {
	model, err := m.client.StartSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions = append(m.sessions, *model)
	sortSessions(m.sessions)
	m.mu.Unlock()
	m.notify(m.sessionHandlers)
	return model, nil
}

// FindSessionByID probes the server for id; nil means unknown id.
func (m *Manager) FindSessionByID(ctx context.Context, id string) (*backend.SessionModel, error) {
	model, err := m.client.GetSession(ctx, id)
	if errors.Is(err, ErrNotConfigured) {
		return nil, nil
	}
	return model, err
}

// ShutdownSession stops the session with the given id.
func (m *Manager) ShutdownSession(ctx context.Context, id string) error {
	if err := m.client.DeleteSession(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	out := m.sessions[:0]
	for _, s := range m.sessions {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.sessions = out
	m.mu.Unlock()
	m.notify(m.sessionHandlers)
	return nil
}

// ShutdownAllSessions enumerates and stops every remote session,
// collecting individual failures.
func (m *Manager) ShutdownAllSessions(ctx context.Context) error {
	sessions, err := m.RunningSessions(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, s := range sessions {
		if err := m.client.DeleteSession(ctx, s.ID); err != nil {
			errs = append(errs, err)
		}
	}
	m.mu.Lock()
	m.sessions = nil
	m.mu.Unlock()
	m.notify(m.sessionHandlers)
	return errors.Join(errs...)
}

// RefreshSessions brings the cached session enumeration current.
func (m *Manager) RefreshSessions(ctx context.Context) error {
	sessions, err := m.client.ListSessions(ctx)
	if errors.Is(err, ErrNotConfigured) {
		sessions = nil
	} else if err != nil {
		m.reportFailure(err)
		return err
	}
	sortSessions(sessions)

	m.mu.Lock()
	changed := !reflect.DeepEqual(m.sessions, sessions)
	m.sessions = sessions
	m.mu.Unlock()
	if changed {
		m.notify(m.sessionHandlers)
	}
	return nil
}

// OnSessionsChanged registers fn for remote session set changes.
func (m *Manager) OnSessionsChanged(fn func()) (unsubscribe func()) {
	return m.register(m.sessionHandlers, fn)
}

func sortSessions(sessions []backend.SessionModel) {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
}
