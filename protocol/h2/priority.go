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

// Package h2 implements the HTTP/2 connection path: frame codec, the
// stream priority/weight tree, and response encoding.
package h2

import (
	"container/heap"
)

// StreamID identifies an HTTP/2 stream.
type StreamID uint32

// frame is the subset of an outbound HTTP/2 frame the priority queue needs
// to carry: the wire bytes and the stream they belong to. The codec is
// responsible for producing/consuming the full RFC 7540 frame layout;
// the queue only ever reorders already-encoded frames.
type frame struct {
	streamID StreamID
	payload  []byte
}

// priorityItem is one entry waiting to be sent, ordered first by its
// stream's weight (heavier first) and, within equal weight, by arrival
// order (seq), giving the stable FIFO-within-tier behaviour spec.md's
// invariant #3 requires.
type priorityItem struct {
	frame  frame
	weight uint8
	seq    uint64
	index  int // maintained by container/heap
}

// priorityHeap is a max-heap on weight, min-heap on seq within a weight
// tier; container/heap is the one stdlib exception in this codebase (see
// DESIGN.md): no ordered-map/balanced-tree library appears anywhere in the
// example corpus for this single-writer/single-reader need.
type priorityHeap []*priorityItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight > h[j].weight
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x any) {
	item := x.(*priorityItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// streamZero is the implicit root of the dependency tree (RFC 7540 §5.3.1:
// stream 0 depends on nothing); NewPriorityQueue weights it at maxWeight.
const streamZero StreamID = 0

// maxWeight is the largest weight a PRIORITY frame can express. This
// package works with the raw wire byte (0..=255, one less than the RFC's
// 1..=256 weight) exactly as decodePriority returns it.
const maxWeight uint8 = 255

// PriorityQueue reorders outbound frames by the sender's announced stream
// priorities, grounded on proto/http2/priority_queue.rs's PriorityQueue:
// RBTree<PriorityFrame, ()> plus two HashMaps become a container/heap plus
// two plain maps.
type PriorityQueue struct {
	queue   priorityHeap
	weight  map[StreamID]uint8
	depend  map[StreamID]StreamID
	nextSeq uint64
}

// NewPriorityQueue returns an empty queue with the implicit root stream
// weighted at its maximum.
func NewPriorityQueue() *PriorityQueue {
	q := &PriorityQueue{
		weight: map[StreamID]uint8{streamZero: maxWeight},
		depend: make(map[StreamID]StreamID),
	}
	heap.Init(&q.queue)
	return q
}

// PriorityUpdate applies a client PRIORITY frame (or the priority fields
// piggy-backed on HEADERS): id takes the given weight, and if it declares
// a non-zero dependency, the parent's weight is raised to at least one
// more than the child's - saturating at maxWeight rather than the
// source's `max(w+1, 255)`, which is always 255 and so never actually
// raises the parent (see DESIGN.md for this deliberate deviation).
func (q *PriorityQueue) PriorityUpdate(id, dependsOn StreamID, weight uint8) {
	q.weight[id] = weight
	if dependsOn == streamZero {
		return
	}
	q.depend[id] = dependsOn

	next := weight
	if next < maxWeight {
		next++
	}
	if cur, ok := q.weight[dependsOn]; !ok || cur < next {
		q.weight[dependsOn] = next
	}
}

// Weight returns the current weight of id, or 0 if it has never been
// assigned one (not yet the subject of a PRIORITY frame or HEADERS with
// priority fields).
func (q *PriorityQueue) Weight(id StreamID) uint8 {
	return q.weight[id]
}

// Enqueue stages payload for id at its current weight. Frames enqueued
// for streams of equal weight are drained in the order they were
// enqueued.
func (q *PriorityQueue) Enqueue(id StreamID, payload []byte) {
	item := &priorityItem{
		frame:  frame{streamID: id, payload: payload},
		weight: q.Weight(id),
		seq:    q.nextSeq,
	}
	q.nextSeq++
	heap.Push(&q.queue, item)
}

// Len reports how many frames are currently staged.
func (q *PriorityQueue) Len() int { return q.queue.Len() }

// TryNext pops the highest-priority staged frame, if any. It never
// blocks - the equivalent of the source's poll_handle loop condition,
// minus the codec write-readiness check the caller (the connection write
// loop) is responsible for performing before calling this.
func (q *PriorityQueue) TryNext() ([]byte, StreamID, bool) {
	if q.queue.Len() == 0 {
		return nil, 0, false
	}
	item := heap.Pop(&q.queue).(*priorityItem)
	return item.frame.payload, item.frame.streamID, true
}

// Drain pops every staged frame in priority order, calling send for each.
// It stops at the first error send returns, mirroring the source's
// poll_handle loop: reordering happens up front via the heap, draining is
// sequential.
func (q *PriorityQueue) Drain(send func(streamID StreamID, payload []byte) error) error {
	for {
		payload, id, ok := q.TryNext()
		if !ok {
			return nil
		}
		if err := send(id, payload); err != nil {
			return err
		}
	}
}
