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

// Package h1 implements the HTTP/1.1 per-connection I/O buffer and
// connection wrapper: request/response assembly, the single in-flight
// outbound message, HTTP/2 preface detection, and the handoff of buffered
// bytes into an HTTP/2 connection on upgrade.
package h1

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/packetd/dualproto/logger"
	"github.com/packetd/dualproto/protocol/body"
	"github.com/packetd/dualproto/protocol/bytebuf"
	"github.com/packetd/dualproto/protocol/errs"
)

// bodyChannelCapacity is the bound on the inbound-body channel: burst
// tolerance without unbounded memory, carried over from the source's
// channel::<(bool, Binary)>(30) (spec.md §9).
const bodyChannelCapacity = 30

// preface is the 24-byte HTTP/2 client connection preface (RFC 7540 §3.5).
const preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// direction tags which half of an outboundMessage is populated, folding the
// source's near-duplicate res/req fields into one variant (spec.md §9).
type direction int

const (
	directionNone direction = iota
	directionRequest
	directionResponse
)

// outboundMessage is the single in-flight outbound message on a connection,
// whichever direction it travels.
type outboundMessage struct {
	dir direction
	req *Request
	res *Response
}

func (m *outboundMessage) body() *body.Body {
	switch m.dir {
	case directionRequest:
		return m.req.Body
	case directionResponse:
		return m.res.Body
	default:
		return nil
	}
}

// writeHeader writes the start line and the message's own header fields,
// then the blank line; the body and its framing are left to flush.
func (m *outboundMessage) writeHeader(dst *bytebuf.Buffer) error {
	var buf bytes.Buffer
	var err error
	switch m.dir {
	case directionRequest:
		r := m.req.Request
		host := r.Host
		if host == "" {
			host = r.URL.Host
		}
		fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\nHost: %s\r\n", r.Method, r.URL.RequestURI(), host)
		err = r.Header.Write(&buf)
	case directionResponse:
		r := m.res.Response
		fmt.Fprintf(&buf, "HTTP/%d.%d %03d %s\r\n", r.ProtoMajor, r.ProtoMinor, r.StatusCode, http.StatusText(r.StatusCode))
		err = r.Header.Write(&buf)
	}
	if err != nil {
		return err
	}
	buf.WriteString("\r\n")
	dst.Write(buf.Bytes())
	return nil
}

// connState holds the per-connection bookkeeping fields spec.md §3
// attributes to the HTTP/1 I/O buffer.
type connState struct {
	mu sync.Mutex

	dealReq      uint64
	isKeepAlive  bool
	isSendHeader bool
	isSendBody   bool
	isSendEnd    bool
	isBuildReq   bool
	leftBodyLen  BodyLength
}

func (s *connState) isActiveClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isSendEnd && !s.isKeepAlive
}

func (s *connState) dealCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dealReq
}

// ioBuffer is the per-connection buffer pair plus assembly state machine of
// spec.md §4.2.
type ioBuffer struct {
	conn net.Conn
	br   *bufio.Reader
	wbuf *bytebuf.Buffer

	state connState

	// bodyDone is signalled by the active body-forwarding goroutine when it
	// reaches end-of-body, gating parsing of the next message exactly as
	// spec.md's is_build_req does (see attachInboundBody).
	bodyDone chan struct{}
}

func newIOBuffer(conn net.Conn) *ioBuffer {
	return &ioBuffer{
		conn: conn,
		br:   bufio.NewReaderSize(conn, 4096),
		wbuf: bytebuf.New(4096),
	}
}

// peekPreface reports whether the next 24 bytes on the wire are the HTTP/2
// client preface, without consuming them unless they match.
func (b *ioBuffer) peekPreface() (bool, error) {
	peeked, err := b.br.Peek(len(preface))
	if err != nil {
		if err == io.EOF || err == bufio.ErrBufferFull {
			return false, nil
		}
		return false, err
	}
	if string(peeked) == preface {
		_, _ = b.br.Discard(len(preface))
		return true, nil
	}
	return false, nil
}

// readRequest parses the next request off the wire (server role). It
// blocks until a full request line + header block has arrived, the HTTP/2
// preface is detected, or the socket closes/errors.
func (b *ioBuffer) readRequest() (*Request, error) {
	if ok, err := b.peekPreface(); err != nil {
		return nil, errs.FromIO(err)
	} else if ok {
		return nil, errs.ServerUpgradeHTTP2(nil, nil)
	}

	httpReq, err := http.ReadRequest(b.br)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errs.FromParse(err, false)
	}

	b.state.mu.Lock()
	b.state.isSendHeader = false
	b.state.isSendBody = false
	b.state.isSendEnd = false
	b.state.isKeepAlive = !httpReq.Close
	b.state.mu.Unlock()

	reqBody := b.attachInboundBody(httpReq.Body, httpReq.ContentLength, methodForbidsBody(httpReq.Method))
	return &Request{Request: httpReq, Body: reqBody}, nil
}

// readResponse parses the next response off the wire (client role),
// symmetric to readRequest.
func (b *ioBuffer) readResponse(forReq *http.Request) (*Response, error) {
	httpRes, err := http.ReadResponse(b.br, forReq)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errs.FromParse(err, false)
	}

	resBody := b.attachInboundBody(httpRes.Body, httpRes.ContentLength, false)
	return &Response{Response: httpRes, Body: resBody}, nil
}

// attachInboundBody wires up the streaming Body for a freshly parsed
// message: an already-ended empty Body for no-body methods, otherwise a
// channel-backed Body fed by a goroutine pumping rc until EOF.
//
// The caller must wait on bodyDone before parsing the next message off the
// same *bufio.Reader - this is what enforces spec.md's is_build_req gate:
// since rc reads from the same underlying connection bytes as any
// subsequent header parse, starting that parse before the pump goroutine
// has fully drained rc would race the bufio.Reader.
func (b *ioBuffer) attachInboundBody(rc io.ReadCloser, contentLength int64, noBody bool) *body.Body {
	if noBody || rc == nil || rc == http.NoBody {
		b.bodyDone = nil
		return body.Empty()
	}

	leftBodyLen := UnboundedUntilClose()
	if contentLength > 0 {
		leftBodyLen = Bounded(int(contentLength))
	} else if contentLength == 0 {
		b.bodyDone = nil
		return body.Empty()
	}

	b.state.mu.Lock()
	b.state.isBuildReq = true
	b.state.leftBodyLen = leftBodyLen
	b.state.mu.Unlock()

	ch := make(chan body.Chunk, bodyChannelCapacity)
	done := make(chan struct{})
	b.bodyDone = done

	go b.pumpBody(rc, ch, done)

	return body.New(ch, nil, false)
}

// pumpBody reads rc in ReadWriteBlockSize-ish slices, forwarding each as a
// Chunk, until rc reaches EOF (graceful end-of-body, even if that EOF
// arrived early relative to the declared Content-Length - truncation is
// reported by the caller inspecting leftBodyLen, per spec.md §7).
func (b *ioBuffer) pumpBody(rc io.ReadCloser, ch chan<- body.Chunk, done chan struct{}) {
	defer close(done)
	defer close(ch)
	defer rc.Close()

	buf := make([]byte, 4096)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			b.state.mu.Lock()
			b.state.leftBodyLen, _ = b.state.leftBodyLen.Consume(n)
			b.state.mu.Unlock()

			ch <- body.Chunk{Data: chunk, IsEnd: err != nil}
		}
		if err != nil {
			b.state.mu.Lock()
			b.state.isBuildReq = false
			b.state.mu.Unlock()
			if err != io.EOF {
				logger.Debugf("h1: body pump stopped early: %v", err)
			}
			return
		}
	}
}

// waitBody blocks until the previously attached inbound body has been
// fully forwarded, the is_build_req gate of spec.md §4.2.
func (b *ioBuffer) waitBody() {
	if b.bodyDone == nil {
		return
	}
	<-b.bodyDone
	b.bodyDone = nil
}

// setOutboundRequest installs req as the in-flight outbound message
// (client role send_request).
func (b *ioBuffer) setOutboundRequest(req *Request) outboundMessage {
	return outboundMessage{dir: directionRequest, req: req}
}

// setOutboundResponse installs res as the in-flight outbound message
// (server role send_response).
func (b *ioBuffer) setOutboundResponse(res *Response) outboundMessage {
	return outboundMessage{dir: directionResponse, res: res}
}

// flush runs the full outbound state machine for msg to completion: encode
// header once, drain the body (chunked if Transfer-Encoding: chunked was
// set on the message), then write everything staged to the socket. It
// blocks until msg has been fully written.
func (b *ioBuffer) flush(msg outboundMessage) error {
	if err := msg.writeHeader(b.wbuf); err != nil {
		return errs.FromIO(err)
	}

	chunked := isChunked(msg)
	bd := msg.body()
	for bd != nil && !bd.IsEnd() {
		if _, err := bd.TryEncode(b.wbuf, chunked); err != nil {
			return errs.FromIO(err)
		}
		if err := b.drainWriteBuf(); err != nil {
			return err
		}
	}
	if bd != nil {
		// Final encode call after IsEnd() so a chunked terminator (if not
		// already emitted) gets appended exactly once.
		if _, err := bd.TryEncode(b.wbuf, chunked); err != nil {
			return errs.FromIO(err)
		}
	}
	if err := b.drainWriteBuf(); err != nil {
		return err
	}

	b.state.mu.Lock()
	b.state.isSendEnd = true
	b.state.dealReq++
	b.state.mu.Unlock()
	return nil
}

func (b *ioBuffer) drainWriteBuf() error {
	for b.wbuf.Len() > 0 {
		n, err := b.conn.Write(b.wbuf.Bytes())
		if n > 0 {
			b.wbuf.Advance(n)
		}
		if err != nil {
			return errs.FromIO(err)
		}
	}
	return nil
}

func isChunked(msg outboundMessage) bool {
	var header http.Header
	switch msg.dir {
	case directionRequest:
		header = msg.req.Header
	case directionResponse:
		header = msg.res.Header
	}
	for _, v := range header.Values("Transfer-Encoding") {
		if v == "chunked" {
			return true
		}
	}
	return false
}

// into tears down the ioBuffer for ownership transfer during an HTTP/2
// upgrade, returning the socket, any bytes already buffered for read past
// the consumed preface, and any bytes still staged for write.
func (b *ioBuffer) into() (net.Conn, []byte, []byte) {
	leftover := make([]byte, b.br.Buffered())
	_, _ = io.ReadFull(b.br, leftover)
	pendingWrite := b.wbuf.Clone()
	return b.conn, leftover, pendingWrite
}

var errConnClosed = errors.New("h1: connection closed")
