// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// LocalExecutor executes code on an in-process kernel.
type LocalExecutor interface {
	Execute(ctx context.Context, id, code string) (string, error)
}

// RemoteDialer opens the websocket channel of a remote kernel.
type RemoteDialer interface {
	ConnectKernel(ctx context.Context, id string) (*websocket.Conn, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The bridge fronts for trusted notebook front-ends on localhost.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EnableChannels wires the kernel websocket channel endpoint. Must be
// called before Register.
func (s *Server) EnableChannels(exec LocalExecutor, dialer RemoteDialer) {
	s.exec = exec
	s.dialer = dialer
}

// kernelChannels serves /api/kernels/:id/channels. Local kernels get an
// in-process message loop; remote kernels get a transparent relay to
// the server's own channel socket.
func (s *Server) kernelChannels(c *gin.Context) {
	if s.exec == nil && s.dialer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "kernel channels not enabled"})
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	model, err := s.kernels.FindByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if model == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "kernel not found", "id": id})
		return
	}
	local, err := s.kernels.IsLocalKernel(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer conn.Close()

	if local {
		s.serveLocalChannel(ctx, conn, id)
		return
	}
	s.relayRemoteChannel(ctx, conn, id)
}

// serveLocalChannel runs the in-process message loop: execute_request
// messages are run on the engine and answered with an execute_result.
func (s *Server) serveLocalChannel(ctx context.Context, conn *websocket.Conn, id string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg := gjson.ParseBytes(data)
		if msg.Get("header.msg_type").String() != "execute_request" {
			continue
		}

		out, err := s.exec.Execute(ctx, id, msg.Get("content.code").String())
		var reply string
		if err != nil {
			reply, _ = sjson.Set("{}", "header.msg_type", "error")
			reply, _ = sjson.Set(reply, "content.evalue", err.Error())
		} else {
			reply, _ = sjson.Set("{}", "header.msg_type", "execute_result")
			reply, _ = sjson.Set(reply, "content.data.text/plain", out)
		}
		reply, _ = sjson.Set(reply, "parent_header.msg_id", msg.Get("header.msg_id").String())
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

// relayRemoteChannel pipes messages between the client socket and the
// remote kernel's channel socket until either side closes.
func (s *Server) relayRemoteChannel(ctx context.Context, client *websocket.Conn, id string) {
	server, err := s.dialer.ConnectKernel(ctx, id)
	if err != nil {
		log.Warnf("Failed to open remote channel for kernel %s: %v", id, err)
		client.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "remote channel unavailable"))
		return
	}
	defer server.Close()

	done := make(chan struct{}, 2)
	pipe := func(dst, src *websocket.Conn) {
		defer func() { done <- struct{}{} }()
		for {
			mt, data, err := src.ReadMessage()
			if err != nil {
				return
			}
			if err := dst.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}
	go pipe(server, client)
	go pipe(client, server)
	<-done
}
