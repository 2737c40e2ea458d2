// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/kernelBridge/internal/events"
)

// kernelServer is a minimal Jupyter kernels endpoint whose payload the
// test mutates between refreshes.
type kernelServer struct {
	mu      sync.Mutex
	payload string
	deleted []string
}

func (s *kernelServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/kernels":
			w.Write([]byte(s.payload))
		case r.Method == http.MethodDelete:
			s.deleted = append(s.deleted, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *kernelServer) setPayload(p string) {
	s.mu.Lock()
	s.payload = p
	s.mu.Unlock()
}

func TestManagerRunningUnconfigured(t *testing.T) {
	m := NewManager(newTestClient("", ""), nil)
	kernels, err := m.Running(context.Background())
	require.NoError(t, err)
	assert.Nil(t, kernels)
}

func TestManagerRefreshNotifiesOnChangeOnly(t *testing.T) {
	ks := &kernelServer{payload: `[{"id": "k1", "name": "python3"}]`}
	srv := httptest.NewServer(ks.handler())
	defer srv.Close()

	m := NewManager(newTestClient(srv.URL, ""), nil)
	notifications := 0
	m.OnRunningChanged(func() { notifications++ })

	ctx := context.Background()
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 1, notifications)

	// Identical payload: the cached set is unchanged, nothing fires.
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 1, notifications)

	ks.setPayload(`[{"id": "k1", "name": "python3"}, {"id": "k2", "name": "ir"}]`)
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 2, notifications)
}

func TestManagerReadyAfterFirstRefreshAttempt(t *testing.T) {
	// Unreachable server: the refresh fails but readiness is reached
	// anyway so the bridge does not hang on a dead remote.
	m := NewManager(newTestClient("http://127.0.0.1:1", ""), nil)
	assert.False(t, m.IsReady())

	err := m.Refresh(context.Background())
	assert.Error(t, err)
	assert.True(t, m.IsReady())
	select {
	case <-m.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready channel not closed")
	}
}

func TestManagerRefreshFailurePublishesEvent(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	received := make(chan *events.Event, 1)
	bus.Subscribe(events.ConnectionFailure, func(e *events.Event) {
		select {
		case received <- e:
		default:
		}
	})

	m := NewManager(newTestClient("http://127.0.0.1:1", ""), bus)
	require.Error(t, m.Refresh(context.Background()))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection failure event")
	}
}

func TestManagerRefreshUnconfiguredIsEmptyNotError(t *testing.T) {
	m := NewManager(newTestClient("", ""), nil)
	require.NoError(t, m.Refresh(context.Background()))
	assert.True(t, m.IsReady())
	kernels, err := m.Running(context.Background())
	require.NoError(t, err)
	assert.Empty(t, kernels)
}

func TestManagerShutdownAll(t *testing.T) {
	ks := &kernelServer{payload: `[{"id": "k1", "name": "python3"}, {"id": "k2", "name": "ir"}]`}
	srv := httptest.NewServer(ks.handler())
	defer srv.Close()

	m := NewManager(newTestClient(srv.URL, ""), nil)
	require.NoError(t, m.ShutdownAll(context.Background()))

	ks.mu.Lock()
	defer ks.mu.Unlock()
	assert.Equal(t, []string{"/api/kernels/k1", "/api/kernels/k2"}, ks.deleted)
}
