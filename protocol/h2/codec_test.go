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
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2/hpack"

	"github.com/packetd/dualproto/protocol/bytebuf"
)

func dialPipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	dst := bytebuf.New(0)
	encodeFrameHeader(dst, frameHeader{length: 42, typ: frameHeaders, flags: flagEndHeaders, streamID: 7})

	got := decodeFrameHeader(dst.Bytes())
	assert.Equal(t, uint32(42), got.length)
	assert.Equal(t, frameHeaders, got.typ)
	assert.Equal(t, flagEndHeaders, got.flags)
	assert.Equal(t, StreamID(7), got.streamID)
}

func TestSettingsRoundTrip(t *testing.T) {
	params := settingsFrame{
		settingMaxConcurrentStreams: 100,
		settingInitialWindowSize:    65535,
	}
	payload := encodeSettings(params)
	got, err := decodeSettings(payload)
	require.NoError(t, err)
	assert.Equal(t, params, got)
}

func TestWindowUpdateRoundTrip(t *testing.T) {
	payload := encodeWindowUpdate(1000)
	got, err := decodeWindowUpdate(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), got)
}

func TestGoAwayRoundTrip(t *testing.T) {
	payload := encodeGoAway(9, goAwayProtocolError, []byte("bye"))
	lastStreamID, errCode, debug, err := decodeGoAway(payload)
	require.NoError(t, err)
	assert.Equal(t, StreamID(9), lastStreamID)
	assert.Equal(t, goAwayProtocolError, errCode)
	assert.Equal(t, "bye", string(debug))
}

func TestCodecHeadersRoundTrip(t *testing.T) {
	clientSide, serverSide := dialPipe()
	defer clientSide.Close()
	defer serverSide.Close()

	serverCodec := NewCodec(serverSide, nil)
	clientCodec := NewCodec(clientSide, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = clientCodec.SendHeaders(1, []hpack.HeaderField{{Name: ":method", Value: "GET"}}, true)
	}()

	ev, err := serverCodec.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, eventHeaders, ev.kind)
	assert.Equal(t, StreamID(1), ev.streamID)
	assert.True(t, ev.endStream)
	<-done
}
