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
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"golang.org/x/net/http2/hpack"

	"github.com/packetd/dualproto/protocol/bytebuf"
	"github.com/packetd/dualproto/protocol/errs"
)

// event is the decoded, type-tagged result of reading one frame off the
// wire - the Go stand-in for the source's Frame<Binary> enum, narrowed to
// what protocol/h2.Conn needs to act on.
type event struct {
	kind        eventKind
	streamID    StreamID
	headers     []hpack.HeaderField
	endStream   bool
	endHeaders  bool
	data        []byte
	settings    settingsFrame
	settingsAck bool
	increment   uint32
	dependsOn   StreamID
	weight      uint8
	errCode     uint32
	lastStream  StreamID
	debug       []byte
	promisedID  StreamID
}

type eventKind int

const (
	eventHeaders eventKind = iota
	eventData
	eventSettings
	eventWindowUpdate
	eventPriority
	eventRSTStream
	eventGoAway
	eventPing
	eventPushPromise
)

// Codec is the per-connection HTTP/2 frame and HPACK layer: it turns the
// wire into events and turns headers/body data back into frames, tracking
// the connection-level and per-stream flow-control windows of RFC 7540
// §6.9. Frame header encode/decode is hand-rolled (frame.go); HPACK uses
// golang.org/x/net/http2/hpack rather than the teacher's own HTTP/2
// library (see DESIGN.md for why).
type Codec struct {
	conn net.Conn
	br   *bufio.Reader
	wbuf *bytebuf.Buffer

	henc    *hpack.Encoder
	hencBuf *bytes.Buffer
	hdec    *hpack.Decoder

	mu                sync.Mutex
	sendWindow        int32
	recvWindow        int32
	streamSendWindow  map[StreamID]int32
	streamRecvWindow  map[StreamID]int32

	pendingHeaders   []hpack.HeaderField
	pendingHeaderID  StreamID
	pendingHeaderEnd bool
	pendingIsPush    bool
	pendingPromised  StreamID
}

// NewCodec wraps conn for HTTP/2 framing, seeding the read side with any
// bytes already buffered by the HTTP/1 path that detected the upgrade
// preface (leftover may be nil/empty).
func NewCodec(conn net.Conn, leftover []byte) *Codec {
	c := &Codec{
		conn:             conn,
		wbuf:             bytebuf.New(4096),
		sendWindow:       defaultInitialWindowSize,
		recvWindow:       defaultInitialWindowSize,
		streamSendWindow: make(map[StreamID]int32),
		streamRecvWindow: make(map[StreamID]int32),
	}
	if len(leftover) > 0 {
		c.br = bufio.NewReaderSize(io.MultiReader(bytes.NewReader(leftover), conn), 4096)
	} else {
		c.br = bufio.NewReaderSize(conn, 4096)
	}
	c.hencBuf = new(bytes.Buffer)
	c.henc = hpack.NewEncoder(c.hencBuf)
	c.hdec = hpack.NewDecoder(4096, func(f hpack.HeaderField) {
		c.pendingHeaders = append(c.pendingHeaders, f)
	})
	return c
}

func (c *Codec) flush() error {
	for c.wbuf.Len() > 0 {
		n, err := c.conn.Write(c.wbuf.Bytes())
		if n > 0 {
			c.wbuf.Advance(n)
		}
		if err != nil {
			return errs.FromIO(err)
		}
	}
	return nil
}

// initStream registers the default flow-control windows for a freshly
// opened stream (RFC 7540 §5.1, §6.9.2).
func (c *Codec) initStream(id StreamID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.streamSendWindow[id]; !ok {
		c.streamSendWindow[id] = defaultInitialWindowSize
	}
	if _, ok := c.streamRecvWindow[id]; !ok {
		c.streamRecvWindow[id] = defaultInitialWindowSize
	}
}

// SendSettings writes a (non-ACK) SETTINGS frame.
func (c *Codec) SendSettings(params settingsFrame) error {
	writeRawFrame(c.wbuf, frameSettings, 0, streamZero, encodeSettings(params))
	return c.flush()
}

// SendSettingsAck acknowledges the peer's SETTINGS frame.
func (c *Codec) SendSettingsAck() error {
	writeRawFrame(c.wbuf, frameSettings, flagAck, streamZero, nil)
	return c.flush()
}

// SendPing writes a PING frame, echoing data back when ack is true.
func (c *Codec) SendPing(data [8]byte, ack bool) error {
	var flags uint8
	if ack {
		flags = flagAck
	}
	writeRawFrame(c.wbuf, framePing, flags, streamZero, data[:])
	return c.flush()
}

// SendWindowUpdate grants the peer additional send window, either for a
// specific stream (id != 0) or the whole connection (id == 0).
func (c *Codec) SendWindowUpdate(id StreamID, increment uint32) error {
	writeRawFrame(c.wbuf, frameWindowUpdate, 0, id, encodeWindowUpdate(increment))
	c.mu.Lock()
	if id == streamZero {
		c.recvWindow += int32(increment)
	} else {
		c.streamRecvWindow[id] += int32(increment)
	}
	c.mu.Unlock()
	return c.flush()
}

// SendRSTStream aborts id with errCode.
func (c *Codec) SendRSTStream(id StreamID, errCode uint32) error {
	writeRawFrame(c.wbuf, frameRSTStream, 0, id, encodeRSTStream(errCode))
	return c.flush()
}

// SendGoAway writes a terminal GOAWAY frame.
func (c *Codec) SendGoAway(lastStreamID StreamID, errCode uint32, debug []byte) error {
	writeRawFrame(c.wbuf, frameGoAway, 0, streamZero, encodeGoAway(lastStreamID, errCode, debug))
	return c.flush()
}

// encodeHeaderFields HPACK-encodes fields into the codec's scratch buffer,
// returning a copy safe to hold onto after the next call.
func (c *Codec) encodeHeaderFields(fields []hpack.HeaderField) ([]byte, error) {
	c.hencBuf.Reset()
	for _, f := range fields {
		if err := c.henc.WriteField(f); err != nil {
			return nil, err
		}
	}
	out := make([]byte, c.hencBuf.Len())
	copy(out, c.hencBuf.Bytes())
	return out, nil
}

// SendHeaders writes a HEADERS frame for id. This codec always emits the
// full header block in one frame (no CONTINUATION splitting), which is
// sufficient for the header sizes this server produces.
func (c *Codec) SendHeaders(id StreamID, fields []hpack.HeaderField, endStream bool) error {
	c.initStream(id)
	block, err := c.encodeHeaderFields(fields)
	if err != nil {
		return err
	}
	flags := flagEndHeaders
	if endStream {
		flags |= flagEndStream
	}
	writeRawFrame(c.wbuf, frameHeaders, flags, id, block)
	return c.flush()
}

// SendPushPromise writes a PUSH_PROMISE frame on id announcing promisedID,
// carrying the would-be request headers of the pushed resource.
func (c *Codec) SendPushPromise(id, promisedID StreamID, fields []hpack.HeaderField) error {
	c.initStream(promisedID)
	block, err := c.encodeHeaderFields(fields)
	if err != nil {
		return err
	}
	payload := make([]byte, 4+len(block))
	payload[0] = byte(promisedID >> 24)
	payload[1] = byte(promisedID >> 16)
	payload[2] = byte(promisedID >> 8)
	payload[3] = byte(promisedID)
	copy(payload[4:], block)
	writeRawFrame(c.wbuf, framePushPromise, flagEndHeaders, id, payload)
	return c.flush()
}

// SendData writes data for id as one or more DATA frames, each bounded by
// maxFrameSize and by the remaining connection/stream send windows. It
// blocks (spinning on a short channel-free sleep is avoided; callers are
// expected to size writes to windows already known to be open) only in
// the sense that a write exceeding the current window is trimmed - the
// caller must retry the remainder once a WINDOW_UPDATE event arrives.
func (c *Codec) SendData(id StreamID, data []byte, endStream bool) (int, error) {
	c.initStream(id)
	c.mu.Lock()
	avail := c.sendWindow
	if sw := c.streamSendWindow[id]; sw < avail {
		avail = sw
	}
	c.mu.Unlock()
	if avail <= 0 && len(data) > 0 {
		return 0, nil
	}

	sent := 0
	for len(data) > 0 {
		n := len(data)
		if n > maxFrameSize {
			n = maxFrameSize
		}
		if int32(n) > avail {
			n = int(avail)
		}
		if n == 0 {
			break
		}
		chunk := data[:n]
		data = data[n:]
		avail -= int32(n)

		var flags uint8
		if endStream && len(data) == 0 {
			flags = flagEndStream
		}
		writeRawFrame(c.wbuf, frameData, flags, id, chunk)
		sent += n
	}
	if sent > 0 {
		c.mu.Lock()
		c.sendWindow -= int32(sent)
		c.streamSendWindow[id] -= int32(sent)
		c.mu.Unlock()
	}
	if endStream && len(data) == 0 && sent == 0 {
		writeRawFrame(c.wbuf, frameData, flagEndStream, id, nil)
	}
	return sent, c.flush()
}

// ReadEvent blocks for the next frame and returns its decoded event.
func (c *Codec) ReadEvent() (event, error) {
	raw, err := readFrame(c.br)
	if err != nil {
		return event{}, err
	}
	return c.decode(raw)
}

func (c *Codec) decode(raw rawFrame) (event, error) {
	h := raw.header
	switch h.typ {
	case frameSettings:
		if h.flags&flagAck != 0 {
			return event{kind: eventSettings, settingsAck: true}, nil
		}
		params, err := decodeSettings(raw.payload)
		if err != nil {
			return event{}, err
		}
		if w, ok := params[settingInitialWindowSize]; ok {
			c.mu.Lock()
			for id := range c.streamSendWindow {
				c.streamSendWindow[id] = int32(w)
			}
			c.mu.Unlock()
		}
		return event{kind: eventSettings, settings: params}, nil

	case frameWindowUpdate:
		increment, err := decodeWindowUpdate(raw.payload)
		if err != nil {
			return event{}, err
		}
		c.mu.Lock()
		if h.streamID == streamZero {
			c.sendWindow += int32(increment)
		} else {
			c.streamSendWindow[h.streamID] += int32(increment)
		}
		c.mu.Unlock()
		return event{kind: eventWindowUpdate, streamID: h.streamID, increment: increment}, nil

	case framePriority:
		dependsOn, weight, err := decodePriority(raw.payload)
		if err != nil {
			return event{}, err
		}
		return event{kind: eventPriority, streamID: h.streamID, dependsOn: dependsOn, weight: weight}, nil

	case frameRSTStream:
		errCode, err := decodeRSTStream(raw.payload)
		if err != nil {
			return event{}, err
		}
		return event{kind: eventRSTStream, streamID: h.streamID, errCode: errCode}, nil

	case frameGoAway:
		lastStreamID, errCode, debug, err := decodeGoAway(raw.payload)
		if err != nil {
			return event{}, err
		}
		return event{kind: eventGoAway, lastStream: lastStreamID, errCode: errCode, debug: debug}, nil

	case framePing:
		var data [8]byte
		copy(data[:], raw.payload)
		return event{kind: eventPing, data: data[:], endStream: h.flags&flagAck != 0}, nil

	case frameHeaders:
		return c.decodeHeaderBlock(h, raw.payload)

	case framePushPromise:
		if len(raw.payload) < 4 {
			return event{}, errs.LibraryGoAway(goAwayFrameSizeError)
		}
		promisedID := StreamID(binary.BigEndian.Uint32(raw.payload[0:4]) & 0x7fffffff)
		return c.decodePushPromiseBlock(h, promisedID, raw.payload[4:])

	case frameContinuation:
		return c.decodeHeaderBlock(h, raw.payload)

	case frameData:
		c.mu.Lock()
		c.recvWindow -= int32(len(raw.payload))
		c.streamRecvWindow[h.streamID] -= int32(len(raw.payload))
		violated := c.recvWindow < 0 || c.streamRecvWindow[h.streamID] < 0
		c.mu.Unlock()
		if violated {
			return event{}, errs.LibraryGoAway(goAwayFlowControlError)
		}
		return event{kind: eventData, streamID: h.streamID, data: raw.payload, endStream: h.flags&flagEndStream != 0}, nil

	default:
		// Unknown frame types are ignored per RFC 7540 §4.1.
		return c.ReadEvent()
	}
}

// decodeHeaderBlock strips padding/priority framing from a HEADERS frame
// (or passes a CONTINUATION payload straight through), feeds the
// remaining fragment to the HPACK decoder, and - once flagEndHeaders is
// set - returns the accumulated field list.
func (c *Codec) decodeHeaderBlock(h frameHeader, payload []byte) (event, error) {
	if h.typ == frameHeaders {
		c.pendingHeaders = c.pendingHeaders[:0]
		c.pendingHeaderID = h.streamID
		c.pendingHeaderEnd = h.flags&flagEndStream != 0
		c.pendingIsPush = false

		if h.flags&flagPadded != 0 {
			if len(payload) < 1 {
				return event{}, errs.LibraryGoAway(goAwayProtocolError)
			}
			padLen := int(payload[0])
			payload = payload[1:]
			if padLen > len(payload) {
				return event{}, errs.LibraryGoAway(goAwayProtocolError)
			}
			payload = payload[:len(payload)-padLen]
		}
		if h.flags&flagPriority != 0 {
			if len(payload) < 5 {
				return event{}, errs.LibraryGoAway(goAwayProtocolError)
			}
			payload = payload[5:]
		}
	}

	return c.decodeHeaderFragment(h, payload)
}

// decodePushPromiseBlock is decodeHeaderBlock's PUSH_PROMISE counterpart:
// promisedID has already been stripped from payload by the caller, only
// PADDED framing remains to strip (PUSH_PROMISE carries no PRIORITY data).
func (c *Codec) decodePushPromiseBlock(h frameHeader, promisedID StreamID, payload []byte) (event, error) {
	c.pendingHeaders = c.pendingHeaders[:0]
	c.pendingHeaderID = h.streamID
	c.pendingHeaderEnd = false
	c.pendingIsPush = true
	c.pendingPromised = promisedID

	if h.flags&flagPadded != 0 {
		if len(payload) < 1 {
			return event{}, errs.LibraryGoAway(goAwayProtocolError)
		}
		padLen := int(payload[0])
		payload = payload[1:]
		if padLen > len(payload) {
			return event{}, errs.LibraryGoAway(goAwayProtocolError)
		}
		payload = payload[:len(payload)-padLen]
	}

	return c.decodeHeaderFragment(h, payload)
}

// decodeHeaderFragment feeds payload to the HPACK decoder and, once
// flagEndHeaders is set on h, emits the assembled event - eventHeaders or
// eventPushPromise depending on which block this completes.
func (c *Codec) decodeHeaderFragment(h frameHeader, payload []byte) (event, error) {
	if _, err := c.hdec.Write(payload); err != nil {
		return event{}, errs.LibraryGoAway(goAwayCompressionError)
	}

	if h.flags&flagEndHeaders == 0 {
		// Wait for the CONTINUATION frame(s) that complete this block.
		return c.ReadEvent()
	}

	fields := make([]hpack.HeaderField, len(c.pendingHeaders))
	copy(fields, c.pendingHeaders)

	if c.pendingIsPush {
		c.initStream(c.pendingPromised)
		return event{
			kind:       eventPushPromise,
			streamID:   c.pendingHeaderID,
			promisedID: c.pendingPromised,
			headers:    fields,
			endHeaders: true,
		}, nil
	}
	c.initStream(c.pendingHeaderID)
	return event{
		kind:       eventHeaders,
		streamID:   c.pendingHeaderID,
		headers:    fields,
		endStream:  c.pendingHeaderEnd,
		endHeaders: true,
	}, nil
}
