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

// Package body implements Body, the streaming request/response body
// abstraction shared by the HTTP/1 and HTTP/2 connection paths: "body
// bytes, possibly not yet arrived". A Body may be fully in hand already
// (Only), empty (Empty), or fed asynchronously by a producer goroutine
// through a bounded channel (New).
package body

import (
	"context"
	"io"

	"github.com/packetd/dualproto/protocol/bytebuf"
)

// Chunk is one unit of body data handed from a connection's read loop (the
// producer) to the Body it feeds (the consumer).
type Chunk struct {
	// IsEnd marks the final chunk of the body.
	IsEnd bool
	Data  []byte
}

// Body is an owning handle to an inbound or outbound body. The zero value
// is not usable; construct with Empty, Only, or New.
type Body struct {
	ch       <-chan Chunk
	prebuf   []byte // immutable, set once at construction (Only)
	staging  *bytebuf.Buffer
	isEnd    bool
	chunkEnd bool // chunked terminator already emitted
}

// Empty returns a Body that is immediately at end-of-body with no bytes.
func Empty() *Body {
	return &Body{isEnd: true}
}

// Only returns a Body whose entire content is already in hand.
func Only(data []byte) *Body {
	return &Body{prebuf: data, isEnd: true}
}

// New returns a Body fed by ch. prebuffered holds bytes already read off
// the wire before ch was wired up (e.g. the tail of the same socket read
// that produced the request headers); isEnd lets the caller construct an
// already-finished streamed body (e.g. Content-Length: 0 bodies that still
// go through the streaming path for uniformity).
func New(ch <-chan Chunk, prebuffered []byte, isEnd bool) *Body {
	b := &Body{ch: ch, isEnd: isEnd}
	if len(prebuffered) > 0 {
		b.staging = bytebuf.New(len(prebuffered))
		b.staging.Write(prebuffered)
	}
	return b
}

// IsEnd reports whether the body has been fully received/produced.
func (b *Body) IsEnd() bool {
	return b.isEnd
}

// SetEnd forces the end-of-body flag, e.g. when a caller has independently
// determined no more bytes are coming (left_body_len reaching zero).
func (b *Body) SetEnd(end bool) {
	b.isEnd = end
}

// BodyLen returns the number of bytes currently buffered in hand. It never
// blocks and never accounts for bytes not yet received from the channel.
func (b *Body) BodyLen() int {
	n := len(b.prebuf)
	if b.staging != nil {
		n += b.staging.Len()
	}
	return n
}

// TryRecv drains the channel non-blockingly into the staging buffer,
// stopping at the first chunk marked IsEnd.
func (b *Body) TryRecv() {
	if b.ch == nil {
		return
	}
	for {
		select {
		case c, ok := <-b.ch:
			if !ok {
				b.isEnd = true
				return
			}
			b.append(c.Data)
			b.isEnd = c.IsEnd
			if b.isEnd {
				return
			}
		default:
			return
		}
	}
}

func (b *Body) append(p []byte) {
	if len(p) == 0 {
		return
	}
	if b.staging == nil {
		b.staging = bytebuf.New(len(p))
	}
	b.staging.Write(p)
}

// ReadNow takes ownership of every byte currently buffered in hand (does
// not await the channel), leaving the Body with nothing pre-buffered.
func (b *Body) ReadNow() []byte {
	out := b.CopyNow()
	b.prebuf = nil
	if b.staging != nil {
		b.staging.AdvanceAll()
	}
	return out
}

// CopyNow returns a copy of every byte currently buffered in hand, without
// consuming it.
func (b *Body) CopyNow() []byte {
	total := b.BodyLen()
	if total == 0 {
		return nil
	}
	out := make([]byte, 0, total)
	out = append(out, b.prebuf...)
	if b.staging != nil {
		out = append(out, b.staging.Bytes()...)
	}
	return out
}

// WaitAll blocks, draining the channel until end-of-body, discarding
// everything into the Body's own staging buffer. It returns the number of
// bytes appended by this call (not counting bytes already in hand).
func (b *Body) WaitAll(ctx context.Context) (int, error) {
	if b.ch == nil || b.isEnd {
		return 0, nil
	}
	size := 0
	for {
		select {
		case <-ctx.Done():
			return size, ctx.Err()
		case c, ok := <-b.ch:
			if !ok {
				b.isEnd = true
				return size, nil
			}
			b.append(c.Data)
			size += len(c.Data)
			b.isEnd = c.IsEnd
			if b.isEnd {
				return size, nil
			}
		}
	}
}

// ReadAll appends every byte currently in hand to dst, then blocks draining
// the channel until end-of-body, appending every further chunk to dst too.
// It returns the total number of bytes written to dst by this call.
func (b *Body) ReadAll(ctx context.Context, dst *bytebuf.Buffer) (int, error) {
	size := 0
	if len(b.prebuf) > 0 {
		n, _ := dst.Write(b.prebuf)
		size += n
		b.prebuf = nil
	}
	if b.staging != nil {
		n, _ := dst.Write(b.staging.Bytes())
		size += n
		b.staging.AdvanceAll()
	}
	if b.isEnd || b.ch == nil {
		return size, nil
	}
	for {
		select {
		case <-ctx.Done():
			return size, ctx.Err()
		case c, ok := <-b.ch:
			if !ok {
				b.isEnd = true
				return size, nil
			}
			n, _ := dst.Write(c.Data)
			size += n
			b.isEnd = c.IsEnd
			if b.isEnd {
				return size, nil
			}
		}
	}
}

// encodeData writes data to dst, wrapping it in an HTTP/1.1 chunked framing
// block when chunked is true.
func encodeData(dst *bytebuf.Buffer, data []byte, chunked bool) (int, error) {
	if !chunked {
		return dst.Write(data)
	}
	if len(data) == 0 {
		return 0, nil
	}
	start := dst.Len()
	size := len(data)
	hdr := []byte(formatHex(size))
	dst.Write(hdr)
	dst.Write(crlf)
	dst.Write(data)
	dst.Write(crlf)
	return dst.Len() - start, nil
}

var (
	crlf           = []byte("\r\n")
	lastChunk      = []byte("0\r\n\r\n")
	hexDigits      = "0123456789abcdef"
)

func formatHex(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = hexDigits[n&0xf]
		n >>= 4
	}
	return string(buf[i:])
}

// TryEncode performs a non-blocking encode of every currently-available
// byte into dst. If chunked, each write is framed as an HTTP/1.1 chunked
// block. When IsEnd becomes true within this call and chunked is set, a
// terminating zero-length chunk ("0\r\n\r\n") is appended - exactly once
// per Body, across any number of TryEncode calls.
func (b *Body) TryEncode(dst *bytebuf.Buffer, chunked bool) (int, error) {
	size := 0
	if len(b.prebuf) > 0 {
		n, err := encodeData(dst, b.prebuf, chunked)
		size += n
		b.prebuf = nil
		if err != nil {
			return size, err
		}
	}
	if b.staging != nil && b.staging.Len() > 0 {
		n, err := encodeData(dst, b.staging.Bytes(), chunked)
		size += n
		b.staging.AdvanceAll()
		if err != nil {
			return size, err
		}
	}

	if b.ch != nil && !b.isEnd {
	drain:
		for {
			select {
			case c, ok := <-b.ch:
				if !ok {
					b.isEnd = true
					break drain
				}
				n, err := encodeData(dst, c.Data, chunked)
				size += n
				b.isEnd = c.IsEnd
				if err != nil {
					return size, err
				}
				if b.isEnd {
					break drain
				}
			default:
				break drain
			}
		}
	}

	if chunked && b.isEnd && !b.chunkEnd {
		dst.Write(lastChunk)
		b.chunkEnd = true
	}
	return size, nil
}

// Reader adapts Body to io.Reader for callers in the operator layer that
// want pull-based reads rather than the connection's native
// TryRecv/TryEncode vocabulary. Reads never block past data already
// delivered on the channel; a Body still awaiting its first chunk returns
// (0, nil) rather than blocking, matching Go's io.Reader contract of never
// blocking indefinitely without the caller being able to cancel - callers
// that need blocking semantics should use WaitAll/ReadAll instead.
type Reader struct {
	b *Body
}

// NewReader wraps b for io.Reader-style consumption.
func NewReader(b *Body) *Reader {
	return &Reader{b: b}
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(r.b.prebuf) > 0 {
		n := copy(p, r.b.prebuf)
		r.b.prebuf = r.b.prebuf[n:]
		return n, nil
	}
	r.b.TryRecv()
	if r.b.staging == nil || r.b.staging.Len() == 0 {
		if r.b.isEnd {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(p, r.b.staging.Bytes())
	r.b.staging.Advance(n)
	return n, nil
}
