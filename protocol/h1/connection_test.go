// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package h1

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/dualproto/protocol/body"
)

func dialPipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

// TestHTTP1Echo covers scenario (a): a client request is parsed
// server-side, a response is sent back, and the client observes it intact.
func TestHTTP1Echo(t *testing.T) {
	clientSide, serverSide := dialPipe()
	defer clientSide.Close()
	defer serverSide.Close()

	server := NewServerConn(serverSide)

	clientErrCh := make(chan error, 1)
	go func() {
		req, err := http.NewRequest(http.MethodPost, "http://example.test/echo", strings.NewReader("ping"))
		if err != nil {
			clientErrCh <- err
			return
		}
		req.Close = true
		if err := req.Write(clientSide); err != nil {
			clientErrCh <- err
			return
		}
		clientErrCh <- nil
	}()
	require.NoError(t, <-clientErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := server.Incoming(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/echo", req.URL.Path)

	n, err := req.Body.WaitAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "ping", string(req.Body.CopyNow()))

	res := &Response{
		Response: &http.Response{
			StatusCode: http.StatusOK,
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     http.Header{"Content-Length": []string{"4"}},
		},
		Body: body.Only([]byte("pong")),
	}
	// net.Pipe is unbuffered, so the client side must be reading while the
	// server flushes the response.
	type clientView struct {
		status int
		body   string
		err    error
	}
	seen := make(chan clientView, 1)
	go func() {
		httpRes, err := http.ReadResponse(bufio.NewReader(clientSide), nil)
		if err != nil {
			seen <- clientView{err: err}
			return
		}
		data, err := io.ReadAll(httpRes.Body)
		seen <- clientView{status: httpRes.StatusCode, body: string(data), err: err}
	}()

	require.NoError(t, server.SendResponse(res))
	assert.Equal(t, uint64(1), server.DealCount())

	got := <-seen
	require.NoError(t, got.err)
	assert.Equal(t, http.StatusOK, got.status)
	assert.Equal(t, "pong", got.body)
}

// TestKeepAliveReuse covers scenario (b): two requests are parsed off one
// connection in sequence without the server closing in between.
func TestKeepAliveReuse(t *testing.T) {
	clientSide, serverSide := dialPipe()
	defer clientSide.Close()
	defer serverSide.Close()

	server := NewServerConn(serverSide)

	go func() {
		for i := 0; i < 2; i++ {
			req, _ := http.NewRequest(http.MethodGet, "http://example.test/ping", nil)
			_ = req.Write(clientSide)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, err := server.Incoming(ctx)
	require.NoError(t, err)
	assert.True(t, server.IsKeepAlive())
	_ = first

	second, err := server.Incoming(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/ping", second.URL.Path)
}

// TestBodyTruncationDetected covers scenario (f): the peer declares more
// body bytes than it actually sends before closing its write side; the
// connection must surface that as a short body rather than hanging.
func TestBodyTruncationDetected(t *testing.T) {
	clientSide, serverSide := dialPipe()
	defer serverSide.Close()

	server := NewServerConn(serverSide)

	go func() {
		_, _ = clientSide.Write([]byte("POST /upload HTTP/1.1\r\nHost: example.test\r\nContent-Length: 10\r\n\r\nabc"))
		clientSide.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := server.Incoming(ctx)
	require.NoError(t, err)

	n, err := req.Body.WaitAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, req.Body.IsEnd())
}
