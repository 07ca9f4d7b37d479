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

package compress

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiatePrefersBrotli(t *testing.T) {
	enc, ok := Negotiate("gzip, br, deflate")
	require.True(t, ok)
	assert.Equal(t, Brotli, enc.Name())
}

func TestNegotiateHonorsExclusion(t *testing.T) {
	enc, ok := Negotiate("br;q=0, gzip")
	require.True(t, ok)
	assert.Equal(t, Gzip, enc.Name())
}

func TestNegotiateNoAcceptableEncoding(t *testing.T) {
	_, ok := Negotiate("identity")
	assert.False(t, ok)
}

func TestNegotiateEmptyHeader(t *testing.T) {
	_, ok := Negotiate("")
	assert.False(t, ok)
}

func TestGzipEncoderRoundTrip(t *testing.T) {
	enc, ok := Lookup(Gzip)
	require.True(t, ok)

	var buf bytes.Buffer
	w := enc.NewWriter(&buf)
	_, err := w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestBrotliEncoderRoundTrip(t *testing.T) {
	enc, ok := Lookup(Brotli)
	require.True(t, ok)

	var buf bytes.Buffer
	w := enc.NewWriter(&buf)
	_, err := w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := io.ReadAll(brotli.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}
