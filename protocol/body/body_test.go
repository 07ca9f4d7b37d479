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

package body

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/dualproto/protocol/bytebuf"
)

func TestEmptyBody(t *testing.T) {
	b := Empty()
	assert.True(t, b.IsEnd())
	assert.Equal(t, 0, b.BodyLen())
}

func TestOnlyBody(t *testing.T) {
	b := Only([]byte("hello"))
	assert.True(t, b.IsEnd())
	assert.Equal(t, "hello", string(b.CopyNow()))
	assert.Equal(t, "hello", string(b.ReadNow()))
	assert.Equal(t, 0, b.BodyLen())
}

func TestBodyReadAllAwaitsChannel(t *testing.T) {
	ch := make(chan Chunk, 30)
	b := New(ch, []byte("pre"), false)

	ch <- Chunk{Data: []byte("fix")}
	ch <- Chunk{Data: []byte("!"), IsEnd: true}

	dst := bytebuf.New(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := b.ReadAll(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "prefix!", string(dst.Bytes()))
	assert.True(t, b.IsEnd())
}

func TestBodyChannelClosedBeforeEndIsGracefulEOF(t *testing.T) {
	ch := make(chan Chunk)
	close(ch)
	b := New(ch, nil, false)

	dst := bytebuf.New(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := b.ReadAll(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, b.IsEnd())
}

func TestBodyTryEncodeChunkedTerminatesExactlyOnce(t *testing.T) {
	ch := make(chan Chunk, 30)
	b := New(ch, nil, false)
	ch <- Chunk{Data: []byte("hello"), IsEnd: true}

	dst := bytebuf.New(0)
	n, err := b.TryEncode(dst, true)
	require.NoError(t, err)
	assert.True(t, n > 0)
	assert.Equal(t, "5\r\nhello\r\n0\r\n\r\n", string(dst.Bytes()))

	// A second call after end-of-body must not repeat the terminator.
	n2, err := b.TryEncode(dst, true)
	require.NoError(t, err)
	assert.Equal(t, 0, n2)
	assert.Equal(t, "5\r\nhello\r\n0\r\n\r\n", string(dst.Bytes()))
}

func TestBodyTryEncodeUnchunked(t *testing.T) {
	b := Only([]byte("hello"))
	dst := bytebuf.New(0)
	n, err := b.TryEncode(dst, false)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(dst.Bytes()))
}

func TestBodyTryRecvStopsAtEnd(t *testing.T) {
	ch := make(chan Chunk, 30)
	ch <- Chunk{Data: []byte("a")}
	ch <- Chunk{Data: []byte("b"), IsEnd: true}
	ch <- Chunk{Data: []byte("c"), IsEnd: true}
	b := New(ch, nil, false)

	b.TryRecv()
	assert.True(t, b.IsEnd())
	assert.Equal(t, "ab", string(b.CopyNow()))
}

func TestReaderAdaptsToIOReader(t *testing.T) {
	b := Only([]byte("abc"))
	r := NewReader(b)
	p := make([]byte, 8)
	n, err := r.Read(p)
	assert.NoError(t, err)
	assert.Equal(t, "abc", string(p[:n]))
	n, err = r.Read(p)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}
