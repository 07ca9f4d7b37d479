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
	"encoding/binary"
	"io"

	"github.com/packetd/dualproto/protocol/bytebuf"
	"github.com/packetd/dualproto/protocol/errs"
)

// frameType is the RFC 7540 §6 frame type byte.
type frameType uint8

const (
	frameData         frameType = 0x0
	frameHeaders      frameType = 0x1
	framePriority     frameType = 0x2
	frameRSTStream    frameType = 0x3
	frameSettings     frameType = 0x4
	framePushPromise  frameType = 0x5
	framePing         frameType = 0x6
	frameGoAway       frameType = 0x7
	frameWindowUpdate frameType = 0x8
	frameContinuation frameType = 0x9
)

// flags, shared bit positions across the frame types that use them.
const (
	flagEndStream  uint8 = 0x1
	flagAck        uint8 = 0x1
	flagEndHeaders uint8 = 0x4
	flagPadded     uint8 = 0x8
	flagPriority   uint8 = 0x20
)

// frameHeaderLen is the fixed 9-byte frame header of RFC 7540 §4.1.
const frameHeaderLen = 9

// maxFrameSize is the default SETTINGS_MAX_FRAME_SIZE floor (RFC 7540
// §6.5.2); this codec never negotiates above it.
const maxFrameSize = 1 << 14

// frameHeader is the 9-byte prefix common to every HTTP/2 frame.
//
//	+-----------------------------------------------+
//	|                 Length (24)                   |
//	+---------------+---------------+---------------+
//	|   Type (8)    |   Flags (8)   |
//	+-+-------------+---------------+-------------------------------+
//	|R|                 Stream Identifier (31)                      |
//	+=+=============================================================+
type frameHeader struct {
	length   uint32 // 24 bits
	typ      frameType
	flags    uint8
	streamID StreamID
}

func encodeFrameHeader(dst *bytebuf.Buffer, h frameHeader) {
	var b [frameHeaderLen]byte
	b[0] = byte(h.length >> 16)
	b[1] = byte(h.length >> 8)
	b[2] = byte(h.length)
	b[3] = byte(h.typ)
	b[4] = h.flags
	binary.BigEndian.PutUint32(b[5:9], uint32(h.streamID)&0x7fffffff)
	dst.Write(b[:])
}

func decodeFrameHeader(b []byte) frameHeader {
	_ = b[frameHeaderLen-1]
	length := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	streamID := binary.BigEndian.Uint32(b[5:9]) & 0x7fffffff
	return frameHeader{
		length:   length,
		typ:      frameType(b[3]),
		flags:    b[4],
		streamID: StreamID(streamID),
	}
}

// rawFrame is a fully-read frame: header plus exactly length payload bytes.
type rawFrame struct {
	header  frameHeader
	payload []byte
}

// readFrame blocks until one full frame has arrived on r.
func readFrame(r io.Reader) (rawFrame, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return rawFrame{}, err
	}
	h := decodeFrameHeader(hdr[:])
	if h.length > maxFrameSize {
		return rawFrame{}, errs.LibraryGoAway(goAwayFrameSizeError)
	}
	payload := make([]byte, h.length)
	if h.length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return rawFrame{}, err
		}
	}
	return rawFrame{header: h, payload: payload}, nil
}

// writeRawFrame writes a frame header followed by payload into dst.
func writeRawFrame(dst *bytebuf.Buffer, typ frameType, flags uint8, streamID StreamID, payload []byte) {
	encodeFrameHeader(dst, frameHeader{
		length:   uint32(len(payload)),
		typ:      typ,
		flags:    flags,
		streamID: streamID,
	})
	dst.Write(payload)
}

// GOAWAY error codes used by this package (RFC 7540 §7).
const (
	goAwayNoError            uint32 = 0x0
	goAwayProtocolError      uint32 = 0x1
	goAwayFrameSizeError     uint32 = 0x6
	goAwayFlowControlError   uint32 = 0x3
	goAwayCompressionError   uint32 = 0x9
)

// settingID is a SETTINGS frame parameter identifier (RFC 7540 §6.5.2).
type settingID uint16

const (
	settingHeaderTableSize      settingID = 0x1
	settingEnablePush           settingID = 0x2
	settingMaxConcurrentStreams settingID = 0x3
	settingInitialWindowSize    settingID = 0x4
	settingMaxFrameSize         settingID = 0x5
	settingMaxHeaderListSize    settingID = 0x6
)

// defaultInitialWindowSize is RFC 7540 §6.5.2's default flow-control
// window, both for the connection and for each new stream.
const defaultInitialWindowSize = 65535

// settingsFrame is a parsed SETTINGS frame payload (never carries the ACK
// flag here; that is tracked by the caller).
type settingsFrame map[settingID]uint32

func encodeSettings(params settingsFrame) []byte {
	buf := make([]byte, 0, 6*len(params))
	for id, v := range params {
		var entry [6]byte
		binary.BigEndian.PutUint16(entry[0:2], uint16(id))
		binary.BigEndian.PutUint32(entry[2:6], v)
		buf = append(buf, entry[:]...)
	}
	return buf
}

func decodeSettings(payload []byte) (settingsFrame, error) {
	if len(payload)%6 != 0 {
		return nil, errs.LibraryGoAway(goAwayFrameSizeError)
	}
	out := make(settingsFrame, len(payload)/6)
	for i := 0; i+6 <= len(payload); i += 6 {
		id := settingID(binary.BigEndian.Uint16(payload[i : i+2]))
		v := binary.BigEndian.Uint32(payload[i+2 : i+6])
		out[id] = v
	}
	return out, nil
}

// decodeWindowUpdate parses a WINDOW_UPDATE payload (RFC 7540 §6.9).
func decodeWindowUpdate(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, errs.LibraryGoAway(goAwayFrameSizeError)
	}
	return binary.BigEndian.Uint32(payload) & 0x7fffffff, nil
}

func encodeWindowUpdate(increment uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], increment&0x7fffffff)
	return b[:]
}

// decodeRSTStream parses an RST_STREAM payload (RFC 7540 §6.4).
func decodeRSTStream(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, errs.LibraryGoAway(goAwayFrameSizeError)
	}
	return binary.BigEndian.Uint32(payload), nil
}

func encodeRSTStream(errCode uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], errCode)
	return b[:]
}

// decodeGoAway parses a GOAWAY payload (RFC 7540 §6.8).
func decodeGoAway(payload []byte) (lastStreamID StreamID, errCode uint32, debug []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, errs.LibraryGoAway(goAwayFrameSizeError)
	}
	lastStreamID = StreamID(binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff)
	errCode = binary.BigEndian.Uint32(payload[4:8])
	debug = payload[8:]
	return lastStreamID, errCode, debug, nil
}

func encodeGoAway(lastStreamID StreamID, errCode uint32, debug []byte) []byte {
	b := make([]byte, 8+len(debug))
	binary.BigEndian.PutUint32(b[0:4], uint32(lastStreamID)&0x7fffffff)
	binary.BigEndian.PutUint32(b[4:8], errCode)
	copy(b[8:], debug)
	return b
}

// decodePriority parses the 5-byte priority payload present either in a
// standalone PRIORITY frame or prefixed onto a HEADERS frame's payload
// when flagPriority is set.
func decodePriority(payload []byte) (dependsOn StreamID, weight uint8, err error) {
	if len(payload) < 5 {
		return 0, 0, errs.LibraryGoAway(goAwayFrameSizeError)
	}
	raw := binary.BigEndian.Uint32(payload[0:4])
	dependsOn = StreamID(raw & 0x7fffffff)
	weight = payload[4]
	return dependsOn, weight, nil
}

func encodePriority(dependsOn StreamID, exclusive bool, weight uint8) []byte {
	var b [5]byte
	v := uint32(dependsOn) & 0x7fffffff
	if exclusive {
		v |= 0x80000000
	}
	binary.BigEndian.PutUint32(b[0:4], v)
	b[4] = weight
	return b[:]
}
