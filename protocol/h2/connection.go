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

package h2

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/packetd/dualproto/logger"
	"github.com/packetd/dualproto/protocol/body"
	"github.com/packetd/dualproto/protocol/errs"
)

// bodyChannelCapacity mirrors h1's inbound body channel bound (spec.md §9:
// capacity 30 for body channels).
const bodyChannelCapacity = 30

// Upgraded is the subset of h1.Upgraded this package depends on, so that
// h2 never has to import h1 (avoiding a cycle risk and keeping the
// upgrade boundary to exactly the three values spec.md's
// ServerUpgradeHttp2 signal carries: the socket, anything already read
// past the preface, and anything already staged to write).
type Upgraded struct {
	Conn         net.Conn
	Leftover     []byte
	PendingWrite []byte
}

// streamState tracks one HTTP/2 stream's inbound assembly.
type streamState struct {
	req    *Request
	bodyCh chan body.Chunk
}

// Conn is a server-role HTTP/2 connection: one read loop decoding frames
// into events and feeding per-stream body channels, plus a shared,
// mutex-serialised write path (SendResponse/SendPush) that writes frames
// straight to the codec. The priority queue records stream weights from
// HEADERS and PRIORITY frames; outbound frames are not routed through it.
type Conn struct {
	codec    *Codec
	priority *PriorityQueue

	writeMu sync.Mutex

	mu          sync.Mutex
	streams     map[StreamID]*streamState
	windowWaitC chan struct{}

	incoming chan *Request
	errCh    chan error
	closed   chan struct{}
}

// NewServerConn builds an HTTP/2 connection from a socket just handed off
// by h1.Conn.IntoH2 (already past the client preface), sends the initial
// server SETTINGS frame, and starts the read loop.
func NewServerConn(up Upgraded) (*Conn, error) {
	c := &Conn{
		codec:       NewCodec(up.Conn, up.Leftover),
		priority:    NewPriorityQueue(),
		streams:     make(map[StreamID]*streamState),
		windowWaitC: make(chan struct{}),
		incoming:    make(chan *Request, bodyChannelCapacity),
		errCh:       make(chan error, 1),
		closed:      make(chan struct{}),
	}

	if len(up.PendingWrite) > 0 {
		if _, err := up.Conn.Write(up.PendingWrite); err != nil {
			return nil, errs.FromIO(err)
		}
	}

	if err := c.codec.SendSettings(settingsFrame{
		settingMaxConcurrentStreams: 128,
		settingInitialWindowSize:    defaultInitialWindowSize,
		settingMaxFrameSize:         maxFrameSize,
	}); err != nil {
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.incoming)
	for {
		ev, err := c.codec.ReadEvent()
		if err != nil {
			if err != io.EOF {
				select {
				case c.errCh <- err:
				default:
				}
			}
			return
		}
		if !c.handleEvent(ev) {
			return
		}
	}
}

// handleEvent applies one decoded event to connection state, returning
// false when the connection should stop reading (GOAWAY received or a
// fatal protocol signal).
func (c *Conn) handleEvent(ev event) bool {
	switch ev.kind {
	case eventSettings:
		if ev.settingsAck {
			return true
		}
		if err := c.codec.SendSettingsAck(); err != nil {
			select {
			case c.errCh <- err:
			default:
			}
			return false
		}
		c.broadcastWindow()
		return true

	case eventWindowUpdate:
		c.broadcastWindow()
		return true

	case eventPriority:
		c.priority.PriorityUpdate(ev.streamID, ev.dependsOn, ev.weight)
		return true

	case eventHeaders:
		c.priority.PriorityUpdate(ev.streamID, streamZero, defaultStreamWeight)
		req := requestFromHeaders(ev.streamID, ev.headers)
		st := &streamState{req: req}
		if !ev.endStream {
			st.bodyCh = make(chan body.Chunk, bodyChannelCapacity)
			req.Body = body.New(st.bodyCh, nil, false)
		} else {
			req.Body = body.Empty()
		}
		c.mu.Lock()
		c.streams[ev.streamID] = st
		c.mu.Unlock()
		select {
		case c.incoming <- req:
		case <-c.closed:
			return false
		}
		return true

	case eventData:
		c.mu.Lock()
		st := c.streams[ev.streamID]
		c.mu.Unlock()
		if st == nil || st.bodyCh == nil {
			return true
		}
		chunk := body.Chunk{Data: ev.data, IsEnd: ev.endStream}
		select {
		case st.bodyCh <- chunk:
		case <-c.closed:
			return false
		}
		if ev.endStream {
			close(st.bodyCh)
			c.mu.Lock()
			st.bodyCh = nil
			c.mu.Unlock()
		}
		// Re-open the per-stream and connection receive windows so the
		// peer is never starved waiting for a WINDOW_UPDATE (spec.md's
		// flow control design assumes a generous, promptly-replenished
		// receive window for this server's own buffering).
		if len(ev.data) > 0 {
			_ = c.codec.SendWindowUpdate(ev.streamID, uint32(len(ev.data)))
			_ = c.codec.SendWindowUpdate(streamZero, uint32(len(ev.data)))
		}
		return true

	case eventRSTStream:
		c.mu.Lock()
		delete(c.streams, ev.streamID)
		c.mu.Unlock()
		return true

	case eventPing:
		if !ev.endStream {
			var data [8]byte
			copy(data[:], ev.data)
			_ = c.codec.SendPing(data, true)
		}
		return true

	case eventGoAway:
		logger.Debugf("h2: received goaway reason=%d", ev.errCode)
		return false

	default:
		return true
	}
}

// defaultStreamWeight is RFC 7540 §5.3.5's default weight for a stream
// that never received an explicit PRIORITY frame.
const defaultStreamWeight uint8 = 16

func (c *Conn) broadcastWindow() {
	c.mu.Lock()
	close(c.windowWaitC)
	c.windowWaitC = make(chan struct{})
	c.mu.Unlock()
}

func (c *Conn) windowSignal() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.windowWaitC
}

// Incoming blocks until the next request's headers have arrived.
func (c *Conn) Incoming(ctx context.Context) (*Request, error) {
	select {
	case req, ok := <-c.incoming:
		if !ok {
			select {
			case err := <-c.errCh:
				return nil, err
			default:
				return nil, io.EOF
			}
		}
		return req, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendResponse drives res to completion on streamID, blocking on
// flow-control windows as needed via the connection's write mutex - at
// most one frame sequence is ever mid-flush at a time, the HTTP/2
// analogue of h1's single in-flight outbound message.
func (c *Conn) SendResponse(ctx context.Context, streamID StreamID, method string, res *Response) error {
	sr := newSendResponse(streamID, method, res)
	return c.drive(ctx, sr)
}

// SendPush announces pushStreamID, chosen by the caller, via PUSH_PROMISE
// on streamID, and drives pushRes to completion on it - scenario (e)'s
// PUSH_PROMISE stream retargeting. It does not allocate or check the
// pushed stream's ID.
func (c *Conn) SendPush(ctx context.Context, streamID, pushStreamID StreamID, promise PushPromise, pushRes *Response) error {
	sr := newPushSendResponse(streamID, pushStreamID, promise, pushRes)
	return c.drive(ctx, sr)
}

func (c *Conn) drive(ctx context.Context, sr *sendResponse) error {
	for {
		c.writeMu.Lock()
		done, err := sr.encode(c.codec)
		c.writeMu.Unlock()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-c.windowSignal():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close tears down the connection, sending a graceful GOAWAY first.
func (c *Conn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	_ = c.codec.SendGoAway(0, goAwayNoError, nil)
	return c.codec.conn.Close()
}
