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

package bytebuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferWriteAndAdvance(t *testing.T) {
	b := New(4)
	n, err := b.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, b.Len())
	assert.Equal(t, "hello", string(b.Bytes()))

	b.Advance(2)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, "llo", string(b.Bytes()))

	b.Advance(3)
	assert.Equal(t, 0, b.Len())
	assert.True(t, b.IsEmpty())
}

func TestBufferAdvancePastEndPanics(t *testing.T) {
	b := New(4)
	b.Write([]byte("ab"))
	assert.Panics(t, func() {
		b.Advance(3)
	})
}

func TestBufferGrowPreservesUnreadData(t *testing.T) {
	b := New(2)
	b.Write([]byte("ab"))
	b.Advance(1)
	b.Write([]byte("cdefgh"))
	assert.Equal(t, "bcdefgh", string(b.Bytes()))
}

func TestBufferChunkMutRoundTrip(t *testing.T) {
	b := New(0)
	dst := b.ChunkMut(8)
	assert.GreaterOrEqual(t, len(dst), 8)
	copy(dst, "abcdefgh")
	b.AdvanceWrite(8)
	assert.Equal(t, "abcdefgh", string(b.Bytes()))
}

func TestBufferCompactReusesCapacity(t *testing.T) {
	b := New(8)
	b.Write([]byte("abcdefgh"))
	b.Advance(8)
	capBefore := b.Cap()
	b.Write([]byte("xy"))
	assert.Equal(t, capBefore, b.Cap())
	assert.Equal(t, "xy", string(b.Bytes()))
}

func TestBufferAdvanceAll(t *testing.T) {
	b := New(4)
	b.Write([]byte("data"))
	b.AdvanceAll()
	assert.Equal(t, 0, b.Len())
}
