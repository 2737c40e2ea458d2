// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/traylinx/kernelBridge/internal/backend"
)

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.sessions.Running(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []backend.SessionModel{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (s *Server) startSession(c *gin.Context) {
	var opts backend.StartSessionOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if opts.Kernel.Name == "" {
		if reg := s.merger.Current(); reg != nil {
			opts.Kernel.Name = reg.Default
		}
	}

	model, loc, err := s.sessions.StartSession(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "location": loc})
		return
	}
	c.JSON(http.StatusCreated, withLocation(model, loc))
}

func (s *Server) getSession(c *gin.Context) {
	id := c.Param("id")
	model, err := s.sessions.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if model == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "id": id})
		return
	}
	c.JSON(http.StatusOK, model)
}

func (s *Server) deleteSession(c *gin.Context) {
	if c.Query("all") == "true" {
		if err := s.sessions.ShutdownAll(c.Request.Context()); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
		return
	}
	if err := s.sessions.Shutdown(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
