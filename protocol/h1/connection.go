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
	"context"
	"io"
	"net"
)

// Role distinguishes which side of the connection Conn is acting as: a
// server reads Requests and writes Responses, a client writes Requests and
// reads Responses.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Conn is an HTTP/1.1 connection: a goroutine-safe wrapper around an
// ioBuffer enforcing "at most one outbound message in flight" and
// surfacing inbound messages one at a time over a channel, mirroring
// spec.md §5's serialised-per-connection model.
type Conn struct {
	role Role
	io   *ioBuffer

	incomingReq chan *Request
	errCh       chan error

	outbox    chan outboundMessage
	sendErrCh chan error

	closeOnce chan struct{}
}

// NewServerConn wraps conn for server-role use: it will parse Requests off
// the wire and expects the caller to send Responses back.
func NewServerConn(conn net.Conn) *Conn {
	c := &Conn{
		role:        RoleServer,
		io:          newIOBuffer(conn),
		incomingReq: make(chan *Request),
		errCh:       make(chan error, 1),
		outbox:      make(chan outboundMessage),
		sendErrCh:   make(chan error, 1),
		closeOnce:   make(chan struct{}),
	}
	go c.readLoopServer()
	go c.writeLoop()
	return c
}

// NewClientConn wraps conn for client-role use: the caller sends Requests
// and this Conn parses the matching Responses off the wire.
func NewClientConn(conn net.Conn) *Conn {
	c := &Conn{
		role:      RoleClient,
		io:        newIOBuffer(conn),
		errCh:     make(chan error, 1),
		outbox:    make(chan outboundMessage),
		sendErrCh: make(chan error, 1),
		closeOnce: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// readLoopServer repeatedly parses requests off the wire, waiting for the
// previous request's body to be fully drained before starting the next
// parse (the is_build_req gate - see ioBuffer.attachInboundBody).
func (c *Conn) readLoopServer() {
	defer close(c.incomingReq)
	for {
		c.io.waitBody()
		req, err := c.io.readRequest()
		if err != nil {
			if err != io.EOF {
				select {
				case c.errCh <- err:
				default:
				}
			}
			return
		}
		select {
		case c.incomingReq <- req:
		case <-c.closeOnce:
			return
		}
	}
}

// writeLoop drains outbox one message at a time, enforcing the "at most
// one outbound message in flight" invariant by construction: the loop
// never starts flushing the next message until flush() returns for the
// current one.
func (c *Conn) writeLoop() {
	for msg := range c.outbox {
		err := c.io.flush(msg)
		select {
		case c.sendErrCh <- err:
		default:
		}
	}
}

// Incoming returns the request parsed for this connection, blocking until
// one arrives, the connection closes, or ctx is cancelled. Server role
// only.
func (c *Conn) Incoming(ctx context.Context) (*Request, error) {
	select {
	case req, ok := <-c.incomingReq:
		if !ok {
			select {
			case err := <-c.errCh:
				return nil, err
			default:
				return nil, errConnClosed
			}
		}
		return req, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendResponse writes res to the wire as the connection's single outbound
// message, blocking until fully flushed. Server role only.
func (c *Conn) SendResponse(res *Response) error {
	c.outbox <- c.io.setOutboundResponse(res)
	return <-c.sendErrCh
}

// SendRequest writes req to the wire, then parses and returns the matching
// Response. Client role only.
func (c *Conn) SendRequest(req *Request) (*Response, error) {
	c.outbox <- c.io.setOutboundRequest(req)
	if err := <-c.sendErrCh; err != nil {
		return nil, err
	}
	return c.io.readResponse(req.Request)
}

// IsKeepAlive reports whether the connection should remain open after the
// in-flight message completes.
func (c *Conn) IsKeepAlive() bool {
	c.io.state.mu.Lock()
	defer c.io.state.mu.Unlock()
	return c.io.state.isKeepAlive
}

// IsActiveClose reports whether the most recent flush both completed
// (isSendEnd) and was not keep-alive, meaning this side should close the
// socket.
func (c *Conn) IsActiveClose() bool {
	return c.io.state.isActiveClose()
}

// DealCount returns the number of outbound messages fully flushed on this
// connection so far, the invariant #1 request/response parity counter.
func (c *Conn) DealCount() uint64 {
	return c.io.state.dealCount()
}

// Upgraded is returned by IntoH2 describing the prior HTTP/1 connection's
// remaining state for handoff to an HTTP/2 connection builder.
type Upgraded struct {
	Conn         net.Conn
	Leftover     []byte
	PendingWrite []byte
}

// IntoH2 tears this Conn down after its readLoop observed the HTTP/2
// client preface (errs.IsServerUpgradeHTTP2), returning the raw socket and
// any buffered bytes so a new HTTP/2 connection can be built in its place.
// Conn must not be used again after this call.
func (c *Conn) IntoH2() Upgraded {
	close(c.closeOnce)
	conn, leftover, pendingWrite := c.io.into()
	return Upgraded{Conn: conn, Leftover: leftover, PendingWrite: pendingWrite}
}

// Close releases the connection's goroutines and underlying socket.
func (c *Conn) Close() error {
	select {
	case <-c.closeOnce:
	default:
		close(c.closeOnce)
	}
	close(c.outbox)
	return c.io.conn.Close()
}
