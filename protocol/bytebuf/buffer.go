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

// Package bytebuf implements the growable, readable/writable byte region
// shared by the HTTP/1 and HTTP/2 connection state machines. Unlike
// bytes.Buffer it keeps an explicit read cursor so callers can peek at the
// readable prefix (Bytes), advance past consumed bytes (Advance), and still
// reuse the backing array for subsequent writes without reallocating.
package bytebuf

// compactThreshold is the number of already-consumed bytes at or above
// which Grow slides the readable prefix back to the start of the backing
// array before growing it; below it, Grow compacts only when that alone
// frees enough room for the write.
const compactThreshold = 4096

// Buffer is a contiguous byte region with independent read and write
// cursors. The zero value is an empty, ready to use Buffer.
type Buffer struct {
	buf []byte
	r   int // read cursor: buf[r:w] is the unread prefix
	w   int // write cursor
}

// New returns a Buffer pre-sized to hold at least size bytes.
func New(size int) *Buffer {
	return &Buffer{buf: make([]byte, 0, size)}
}

// Len returns the number of unread bytes currently buffered.
func (b *Buffer) Len() int {
	return b.w - b.r
}

// Remaining is an alias of Len kept for readers translating directly from
// the buf/Buf vocabulary (remaining()) this type is modeled on.
func (b *Buffer) Remaining() int {
	return b.Len()
}

// IsEmpty reports whether there are no unread bytes.
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// Cap returns the capacity of the backing array.
func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Bytes returns the readable prefix: the unread bytes currently staged in
// the buffer. The returned slice aliases the buffer's backing array and is
// invalidated by the next Write or Advance call.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.r:b.w]
}

// Clone returns a copy of the readable prefix, safe to retain past the next
// mutation of b.
func (b *Buffer) Clone() []byte {
	if b.Len() == 0 {
		return nil
	}
	out := make([]byte, b.Len())
	copy(out, b.Bytes())
	return out
}

// Advance drops the first n bytes of the readable prefix from future
// observation. n must not exceed Len(); advancing past the end of the
// buffered data is a caller bug and panics, matching the buf crate's
// advance() contract this mirrors.
func (b *Buffer) Advance(n int) {
	if n == 0 {
		return
	}
	if n > b.Len() {
		panic("bytebuf: Advance past end of buffer")
	}
	b.r += n
	if b.r == b.w {
		// Nothing left unread: reset cursors so future writes reuse
		// the backing array from the start instead of growing forever.
		b.r, b.w = 0, 0
	}
}

// AdvanceAll discards every currently buffered byte.
func (b *Buffer) AdvanceAll() {
	b.r, b.w = 0, 0
}

// Grow ensures the backing array can hold n additional bytes without a
// further allocation, compacting the already-consumed prefix first when
// that alone would make room.
func (b *Buffer) Grow(n int) {
	if cap(b.buf)-b.w >= n {
		return
	}
	if b.r > 0 && (b.r >= compactThreshold || cap(b.buf)-b.Len() >= n) {
		b.compact()
		if cap(b.buf)-b.w >= n {
			return
		}
	}
	needed := b.Len() + n
	grown := make([]byte, b.Len(), max(needed, cap(b.buf)*2))
	copy(grown, b.Bytes())
	b.buf = grown
	b.w = len(grown)
	b.r = 0
}

// compact slides the unread prefix back to index 0.
func (b *Buffer) compact() {
	if b.r == 0 {
		return
	}
	n := copy(b.buf, b.Bytes())
	b.r = 0
	b.w = n
}

// Write appends p to the buffer, growing the backing array as needed. It
// never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.Grow(len(p))
	b.buf = b.buf[:b.w+len(p)]
	n := copy(b.buf[b.w:], p)
	b.w += n
	return n, nil
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

// WriteString appends s without an intermediate []byte conversion cost
// beyond what the runtime already performs for the unsafe-free path.
func (b *Buffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// ChunkMut returns the writable tail of the backing array, growing it by at
// least size bytes first. Callers that write directly into the returned
// slice (e.g. a net.Conn.Read target) must follow up with AdvanceWrite to
// register how many bytes were actually produced.
func (b *Buffer) ChunkMut(size int) []byte {
	b.Grow(size)
	return b.buf[b.w:cap(b.buf)]
}

// AdvanceWrite registers n bytes, previously written directly into the
// slice returned by ChunkMut, as part of the readable prefix.
func (b *Buffer) AdvanceWrite(n int) {
	b.w += n
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
