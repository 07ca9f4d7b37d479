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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPriorityOrdersHeavierStreamsFirst covers scenario (d): frames staged
// for a heavier-weighted stream drain before frames staged for a lighter
// one, regardless of enqueue order.
func TestPriorityOrdersHeavierStreamsFirst(t *testing.T) {
	q := NewPriorityQueue()
	q.PriorityUpdate(1, streamZero, 10)
	q.PriorityUpdate(3, streamZero, 200)

	q.Enqueue(1, []byte("light"))
	q.Enqueue(3, []byte("heavy"))

	payload, id, ok := q.TryNext()
	require.True(t, ok)
	assert.Equal(t, StreamID(3), id)
	assert.Equal(t, "heavy", string(payload))

	payload, id, ok = q.TryNext()
	require.True(t, ok)
	assert.Equal(t, StreamID(1), id)
	assert.Equal(t, "light", string(payload))

	_, _, ok = q.TryNext()
	assert.False(t, ok)
}

// TestPriorityStableWithinTier covers invariant #3: frames of equal
// weight drain in the order they were enqueued.
func TestPriorityStableWithinTier(t *testing.T) {
	q := NewPriorityQueue()
	q.PriorityUpdate(1, streamZero, 16)
	q.PriorityUpdate(3, streamZero, 16)
	q.PriorityUpdate(5, streamZero, 16)

	q.Enqueue(1, []byte("a"))
	q.Enqueue(3, []byte("b"))
	q.Enqueue(5, []byte("c"))

	var order []string
	err := q.Drain(func(_ StreamID, payload []byte) error {
		order = append(order, string(payload))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

// TestPriorityDependencyRaisesParentWeight exercises the saturating (not
// source's always-255) parent weight bump on PRIORITY frames declaring a
// dependency.
func TestPriorityDependencyRaisesParentWeight(t *testing.T) {
	q := NewPriorityQueue()
	q.PriorityUpdate(1, streamZero, 16) // establish stream 1 as a parent
	q.PriorityUpdate(3, 1, 200)         // stream 3 depends on stream 1

	assert.GreaterOrEqual(t, q.Weight(1), uint8(201))
}
