// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/traylinx/kernelBridge/internal/backend"
)

func (s *Server) listKernels(c *gin.Context) {
	kernels, err := s.kernels.Running(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if kernels == nil {
		kernels = []backend.KernelModel{}
	}
	c.JSON(http.StatusOK, kernels)
}

func (s *Server) startKernel(c *gin.Context) {
	var opts backend.StartKernelOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if opts.Name == "" {
		if reg := s.merger.Current(); reg != nil {
			opts.Name = reg.Default
		}
	}

	model, loc, err := s.kernels.StartNew(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "location": loc})
		return
	}
	c.JSON(http.StatusCreated, withLocation(model, loc))
}

func (s *Server) getKernel(c *gin.Context) {
	id := c.Param("id")
	model, err := s.kernels.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if model == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "kernel not found", "id": id})
		return
	}
	local, _ := s.kernels.IsLocalKernel(c.Request.Context(), id)
	loc := "remote"
	if local {
		loc = "local"
	}
	c.JSON(http.StatusOK, withLocation(model, loc))
}

func (s *Server) deleteKernel(c *gin.Context) {
	if c.Query("all") == "true" {
		if err := s.kernels.ShutdownAll(c.Request.Context()); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
		return
	}
	if err := s.kernels.Shutdown(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) restartKernel(c *gin.Context) {
	if err := s.kernels.Restart(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) interruptKernel(c *gin.Context) {
	if err := s.kernels.Interrupt(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// withLocation flattens a model into a JSON object and adds the
// backend that owns it. Front-ends that only speak plain Jupyter ignore
// the extra field; the promotion workflow reads it before offering to
// relaunch a local kernel remotely.
func withLocation(model interface{}, loc interface{}) gin.H {
	out := gin.H{}
	if data, err := json.Marshal(model); err == nil {
		_ = json.Unmarshal(data, &out)
	}
	out["location"] = loc
	return out
}
