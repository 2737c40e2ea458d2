// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/traylinx/kernelBridge/internal/backend"
	"github.com/traylinx/kernelBridge/internal/config"
	"github.com/traylinx/kernelBridge/internal/engine"
	"github.com/traylinx/kernelBridge/internal/events"
	"github.com/traylinx/kernelBridge/internal/kernelspec"
	"github.com/traylinx/kernelBridge/internal/router"
)

// stubRemote is an always-empty, always-ready remote backend, so the
// API tests exercise the full stack without a network.
type stubRemote struct {
	ready chan struct{}
}

func newStubRemote() *stubRemote {
	s := &stubRemote{ready: make(chan struct{})}
	close(s.ready)
	return s
}

func (s *stubRemote) Running(ctx context.Context) ([]backend.KernelModel, error) { return nil, nil }
func (s *stubRemote) StartNew(ctx context.Context, opts backend.StartKernelOptions) (*backend.KernelModel, error) {
	return nil, errors.New("no remote server configured")
}
func (s *stubRemote) FindByID(ctx context.Context, id string) (*backend.KernelModel, error) {
	return nil, nil
}
func (s *stubRemote) Shutdown(ctx context.Context, id string) error    { return nil }
func (s *stubRemote) ShutdownAll(ctx context.Context) error            { return nil }
func (s *stubRemote) Restart(ctx context.Context, id string) error     { return nil }
func (s *stubRemote) Interrupt(ctx context.Context, id string) error   { return nil }
func (s *stubRemote) Refresh(ctx context.Context) error                { return nil }
func (s *stubRemote) OnRunningChanged(fn func()) (unsubscribe func())  { return func() {} }
func (s *stubRemote) IsReady() bool                                    { return true }
func (s *stubRemote) Ready() <-chan struct{}                           { return s.ready }
func (s *stubRemote) RunningSessions(ctx context.Context) ([]backend.SessionModel, error) {
	return nil, nil
}
func (s *stubRemote) StartSession(ctx context.Context, opts backend.StartSessionOptions) (*backend.SessionModel, error) {
	return nil, errors.New("no remote server configured")
}
func (s *stubRemote) FindSessionByID(ctx context.Context, id string) (*backend.SessionModel, error) {
	return nil, nil
}
func (s *stubRemote) ShutdownSession(ctx context.Context, id string) error { return nil }
func (s *stubRemote) ShutdownAllSessions(ctx context.Context) error        { return nil }
func (s *stubRemote) RefreshSessions(ctx context.Context) error            { return nil }
func (s *stubRemote) OnSessionsChanged(fn func()) (unsubscribe func())     { return func() {} }

type testStack struct {
	handler *gin.Engine
	server  *Server
	merger  *kernelspec.Merger
	kernels *router.KernelRouter
	engine  *engine.Engine
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.NewProvider(&config.Config{Mode: "remote"}, nil)
	bus := events.NewBus()
	eng := engine.New(nil)
	remote := newStubRemote()

	merger := kernelspec.NewMerger(cfg, eng, nil, bus)
	kernels := router.NewKernelRouter(eng, remote, merger, bus)
	sessions := router.NewSessionRouter(eng, remote, merger, bus)

	srv := NewServer(cfg, merger, kernels, sessions, bus)
	r := gin.New()
	srv.Register(r)

	t.Cleanup(func() {
		kernels.Dispose()
		sessions.Dispose()
		bus.Close()
	})
	return &testStack{handler: r, server: srv, merger: merger, kernels: kernels, engine: eng}
}

func (ts *testStack) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func TestAPIKernelSpecsEmptyBeforeFirstRefresh(t *testing.T) {
	ts := newTestStack(t)

	w := ts.do(t, http.MethodGet, "/api/kernelspecs", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "", body.Get("default").String())
	assert.Equal(t, 0, len(body.Get("kernelspecs").Map()))
}

func TestAPIKernelSpecsAfterRefresh(t *testing.T) {
	ts := newTestStack(t)
	changed, err := ts.merger.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, changed)

	w := ts.do(t, http.MethodGet, "/api/kernelspecs", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "echo", body.Get("default").String())
	assert.True(t, body.Get("kernelspecs.echo").Exists())
}

func TestAPIKernelLifecycle(t *testing.T) {
	ts := newTestStack(t)
	_, err := ts.merger.Refresh(context.Background())
	require.NoError(t, err)

	w := ts.do(t, http.MethodPost, "/api/kernels", `{"name": "echo"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := gjson.Parse(w.Body.String())
	id := created.Get("id").String()
	require.NotEmpty(t, id)
	assert.Equal(t, "local", created.Get("location").String())
	assert.Equal(t, "echo", created.Get("name").String())

	w = ts.do(t, http.MethodGet, "/api/kernels", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gjson.Parse(w.Body.String()).Array(), 1)

	w = ts.do(t, http.MethodGet, "/api/kernels/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "local", gjson.Get(w.Body.String(), "location").String())

	w = ts.do(t, http.MethodPost, "/api/kernels/"+id+"/restart", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/api/kernels/"+id+"/interrupt", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/kernels/"+id, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodGet, "/api/kernels/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIStartKernelDefaultsSpecName(t *testing.T) {
	ts := newTestStack(t)
	_, err := ts.merger.Refresh(context.Background())
	require.NoError(t, err)

	w := ts.do(t, http.MethodPost, "/api/kernels", `{}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "echo", gjson.Get(w.Body.String(), "name").String())
}

func TestAPIStartKernelUnknownSpec(t *testing.T) {
	ts := newTestStack(t)
	_, err := ts.merger.Refresh(context.Background())
	require.NoError(t, err)

	// Unknown spec name classifies remote; the stub remote backend
	// returns nothing, so creation fails upstream.
	w := ts.do(t, http.MethodPost, "/api/kernels", `{"name": "python3"}`)
	assert.NotEqual(t, http.StatusCreated, w.Code)
}

func TestAPIDeleteAllKernels(t *testing.T) {
	ts := newTestStack(t)
	_, err := ts.merger.Refresh(context.Background())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodPost, "/api/kernels", `{"name": "echo"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := ts.do(t, http.MethodDelete, "/api/kernels/ignored?all=true", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/kernels", "")
	assert.Len(t, gjson.Parse(w.Body.String()).Array(), 0)
}

func TestAPISessionLifecycle(t *testing.T) {
	ts := newTestStack(t)
	_, err := ts.merger.Refresh(context.Background())
	require.NoError(t, err)

	w := ts.do(t, http.MethodPost, "/api/sessions",
		`{"path": "nb.ipynb", "type": "notebook", "kernel": {"name": "echo"}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	sess := gjson.Parse(w.Body.String())
	id := sess.Get("id").String()
	require.NotEmpty(t, id)
	assert.Equal(t, "echo", sess.Get("kernel.name").String())

	w = ts.do(t, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gjson.Parse(w.Body.String()).Array(), 1)

	w = ts.do(t, http.MethodGet, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodGet, "/api/sessions", "")
	assert.Len(t, gjson.Parse(w.Body.String()).Array(), 0)
}

func TestAPIStatus(t *testing.T) {
	ts := newTestStack(t)
	_, err := ts.merger.Refresh(context.Background())
	require.NoError(t, err)

	select {
	case <-ts.kernels.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("router not ready")
	}

	w := ts.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "remote", body.Get("mode").String())
	assert.True(t, body.Get("ready").Bool())
	assert.Equal(t, int64(1), body.Get("kernelspecs").Int())
}

func TestAPIRemoteConfig(t *testing.T) {
	ts := newTestStack(t)

	w := ts.do(t, http.MethodGet, "/api/config/remote", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "connected").Bool())

	w = ts.do(t, http.MethodPut, "/api/config/remote",
		`{"base_url": "https://hub.example.com", "token": "tok", "connected": true}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/config/remote", "")
	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "https://hub.example.com", body.Get("base_url").String())
	assert.True(t, body.Get("connected").Bool())
	assert.True(t, body.Get("has_token").Bool())
}

func TestAPIRemoteConfigRejectsMalformedBody(t *testing.T) {
	ts := newTestStack(t)
	w := ts.do(t, http.MethodPut, "/api/config/remote", `{"base_url": 42`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServerStandby(t *testing.T) {
	ts := newTestStack(t)

	// Zero window disables standby outright.
	assert.False(t, ts.server.Standby())
}
