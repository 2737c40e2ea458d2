// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the unified manager surface as a
// Jupyter-compatible HTTP API, so any notebook front-end can point at
// the bridge as if it were a single kernel server.
package api

import (
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/traylinx/kernelBridge/internal/buildinfo"
	"github.com/traylinx/kernelBridge/internal/config"
	"github.com/traylinx/kernelBridge/internal/events"
	"github.com/traylinx/kernelBridge/internal/kernelspec"
	"github.com/traylinx/kernelBridge/internal/poller"
	"github.com/traylinx/kernelBridge/internal/router"
)

// Server wires the routing core into HTTP handlers.
type Server struct {
	cfg      *config.Provider
	merger   *kernelspec.Merger
	kernels  *router.KernelRouter
	sessions *router.SessionRouter
	bus      *events.Bus

	// pollers triggered immediately on a configuration change.
	pollers []*poller.Poller

	// Channel endpoint backends, set through EnableChannels.
	exec   LocalExecutor
	dialer RemoteDialer

	lastActivity atomic.Int64
}

// NewServer creates the API server.
func NewServer(cfg *config.Provider, merger *kernelspec.Merger, kernels *router.KernelRouter, sessions *router.SessionRouter, bus *events.Bus, pollers ...*poller.Poller) *Server {
	s := &Server{
		cfg:      cfg,
		merger:   merger,
		kernels:  kernels,
		sessions: sessions,
		bus:      bus,
		pollers:  pollers,
	}
	s.touch()
	return s
}

// Register mounts all routes on r.
func (s *Server) Register(r *gin.Engine) {
	r.Use(s.activityMiddleware())

	api := r.Group("/api")
	api.GET("/status", s.getStatus)
	api.GET("/kernelspecs", s.getKernelSpecs)

	api.GET("/kernels", s.listKernels)
	api.POST("/kernels", s.startKernel)
	api.GET("/kernels/:id", s.getKernel)
	api.DELETE("/kernels/:id", s.deleteKernel)
	api.POST("/kernels/:id/restart", s.restartKernel)
	api.POST("/kernels/:id/interrupt", s.interruptKernel)
	api.GET("/kernels/:id/channels", s.kernelChannels)

	api.GET("/sessions", s.listSessions)
	api.POST("/sessions", s.startSession)
	api.GET("/sessions/:id", s.getSession)
	api.DELETE("/sessions/:id", s.deleteSession)

	api.GET("/config/remote", s.getRemoteConfig)
	api.PUT("/config/remote", s.putRemoteConfig)

	api.GET("/events", s.streamEvents)
}

// activityMiddleware records the time of the last client request. The
// pollers' standby predicate uses it: no clients, no polling.
func (s *Server) activityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.touch()
		c.Next()
	}
}

func (s *Server) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Standby reports whether no client has called the API within the
// configured standby window.
func (s *Server) Standby() bool {
	window := s.cfg.Config().Polling.StandbySeconds
	if window <= 0 {
		return false
	}
	last := time.Unix(0, s.lastActivity.Load())
	return time.Since(last) > time.Duration(window)*time.Second
}

func (s *Server) getStatus(c *gin.Context) {
	running, _ := s.kernels.Running(c.Request.Context())
	sessions, _ := s.sessions.Running(c.Request.Context())

	specCount := 0
	if reg := s.merger.Current(); reg != nil {
		specCount = len(reg.KernelSpecs)
	}

	payload := map[string]interface{}{
		"version":          buildinfo.Version,
		"mode":             s.cfg.Mode(),
		"ready":            s.kernels.IsReady(),
		"remote_base_url":  s.cfg.RemoteBaseURL(),
		"remote_connected": s.cfg.RemoteConnected(),
		"kernelspecs":      specCount,
		"kernels":          len(running),
		"sessions":         len(sessions),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) getKernelSpecs(c *gin.Context) {
	reg := s.merger.Current()
	if reg == nil {
		// No registry yet: neither side has produced specs since start.
		c.JSON(http.StatusOK, gin.H{"default": "", "kernelspecs": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (s *Server) getRemoteConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"base_url":  s.cfg.RemoteBaseURL(),
		"connected": s.cfg.RemoteConnected(),
		"has_token": s.cfg.RemoteToken() != "",
	})
}

type remoteConfigRequest struct {
	BaseURL   string `json:"base_url"`
	Token     string `json:"token"`
	Connected bool   `json:"connected"`
}

func (s *Server) putRemoteConfig(c *gin.Context) {
	var req remoteConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.cfg.SetRemote(req.BaseURL, req.Token, req.Connected); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// A configuration change forces immediate refreshes and resets
	// the poll backoff.
	for _, p := range s.pollers {
		p.Trigger()
	}
	c.JSON(http.StatusOK, gin.H{
		"base_url":  s.cfg.RemoteBaseURL(),
		"connected": s.cfg.RemoteConnected(),
	})
}

// streamEvents relays bus events to the client as server-sent events
// until the client disconnects.
func (s *Server) streamEvents(c *gin.Context) {
	ch := make(chan *events.Event, 32)
	subs := []*events.Subscription{
		s.bus.Subscribe(events.SpecsChanged, func(ev *events.Event) { relay(ch, ev) }),
		s.bus.Subscribe(events.KernelsChanged, func(ev *events.Event) { relay(ch, ev) }),
		s.bus.Subscribe(events.SessionsChanged, func(ev *events.Event) { relay(ch, ev) }),
		s.bus.Subscribe(events.ConnectionFailure, func(ev *events.Event) { relay(ch, ev) }),
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev := <-ch:
			c.SSEvent(string(ev.Type), ev.Data)
			return true
		}
	})
}

func relay(ch chan *events.Event, ev *events.Event) {
	select {
	case ch <- ev:
	default:
	}
}
