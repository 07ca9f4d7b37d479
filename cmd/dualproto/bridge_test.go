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

package main

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/dualproto/protocol/body"
)

func TestToReadCloserDrainsBody(t *testing.T) {
	rc := toReadCloser(context.Background(), body.Only([]byte("payload")))
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestToReadCloserNilBody(t *testing.T) {
	rc := toReadCloser(context.Background(), nil)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFromReadCloserRoundTrip(t *testing.T) {
	b := fromReadCloser(io.NopCloser(strings.NewReader("hello")))
	assert.True(t, b.IsEnd())
	assert.Equal(t, "hello", string(b.ReadNow()))
}
