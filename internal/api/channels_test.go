// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/traylinx/kernelBridge/internal/engine"
)

func TestKernelChannelsLocalExecution(t *testing.T) {
	ts := newTestStack(t)
	_, err := ts.merger.Refresh(context.Background())
	require.NoError(t, err)

	eng := ts.engine
	ts.server.EnableChannels(eng, nil)

	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	w := ts.do(t, http.MethodPost, "/api/kernels", `{"name": "echo"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := gjson.Get(w.Body.String(), "id").String()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/kernels/" + id + "/channels"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	request := `{"header": {"msg_type": "execute_request", "msg_id": "m1"}, "content": {"code": "print(40+2)"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(request)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	reply := gjson.ParseBytes(data)
	assert.Equal(t, "execute_result", reply.Get("header.msg_type").String())
	assert.Equal(t, "print(40+2)", reply.Get("content.data.text/plain").String())
	assert.Equal(t, "m1", reply.Get("parent_header.msg_id").String())
}

func TestKernelChannelsUnknownKernel(t *testing.T) {
	ts := newTestStack(t)
	_, err := ts.merger.Refresh(context.Background())
	require.NoError(t, err)
	ts.server.EnableChannels(engine.New(nil), nil)

	w := ts.do(t, http.MethodGet, "/api/kernels/nope/channels", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKernelChannelsNotEnabled(t *testing.T) {
	ts := newTestStack(t)
	w := ts.do(t, http.MethodGet, "/api/kernels/any/channels", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
