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

// Package compress negotiates and applies Content-Encoding for outbound
// response bodies: exactly the concern dispatch.HandleRequest's
// Accept-Encoding sniffing exists to feed (spec.md §4.7). Encoders wrap an
// io.Writer rather than transforming whole buffers, so a response body can
// be compressed as it streams out instead of being materialized twice.
package compress

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
)

// Name is one of the Content-Encoding tokens this package knows how to
// produce; Negotiate walks them in preferenceOrder.
type Name string

const (
	Gzip    Name = "gzip"
	Brotli  Name = "br"
	Deflate Name = "deflate"
	Identity Name = "identity"
)

// preferenceOrder is the order Negotiate checks an Accept-Encoding header
// against. Non-zero q-values do not change this order; only q=0 excludes a
// token. brotli
// compresses smallest for the teacher's typical payloads, gzip is the most
// broadly supported fallback, deflate trails both.
var preferenceOrder = []Name{Brotli, Gzip, Deflate}

// Encoder constructs the io.WriteCloser that applies one compression
// scheme to whatever is written to it, flushing a complete stream on
// Close.
type Encoder interface {
	Name() Name
	NewWriter(w io.Writer) io.WriteCloser
}

type gzipEncoder struct{}

func (gzipEncoder) Name() Name                        { return Gzip }
func (gzipEncoder) NewWriter(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) }

type brotliEncoder struct{}

func (brotliEncoder) Name() Name { return Brotli }
func (brotliEncoder) NewWriter(w io.Writer) io.WriteCloser {
	return brotli.NewWriter(w)
}

type deflateEncoder struct{}

func (deflateEncoder) Name() Name { return Deflate }
func (deflateEncoder) NewWriter(w io.Writer) io.WriteCloser {
	fw, _ := flate.NewWriter(w, flate.DefaultCompression)
	return fw
}

var encoders = map[Name]Encoder{
	Gzip:    gzipEncoder{},
	Brotli:  brotliEncoder{},
	Deflate: deflateEncoder{},
}

// Lookup returns the concrete Encoder for name, if this package implements
// it.
func Lookup(name Name) (Encoder, bool) {
	e, ok := encoders[name]
	return e, ok
}

// Negotiate picks the best Encoder this package supports out of the
// tokens listed in an Accept-Encoding header value, honoring explicit
// "q=0" exclusions and otherwise falling back to preferenceOrder. It
// reports (nil, false) when the client accepts only identity, or sent no
// header at all.
func Negotiate(acceptEncoding string) (Encoder, bool) {
	if strings.TrimSpace(acceptEncoding) == "" {
		return nil, false
	}

	excluded := make(map[Name]bool)
	accepted := make(map[Name]bool)
	for _, part := range strings.Split(acceptEncoding, ",") {
		token, q := parseToken(part)
		if token == "" {
			continue
		}
		name := Name(token)
		if q == 0 {
			excluded[name] = true
			continue
		}
		accepted[name] = true
	}

	for _, name := range preferenceOrder {
		if excluded[name] {
			continue
		}
		if !accepted[name] && !accepted["*"] {
			continue
		}
		if e, ok := encoders[name]; ok {
			return e, true
		}
	}
	return nil, false
}

// parseToken splits one Accept-Encoding list element ("br;q=0.8") into its
// lowercased token and q-value (defaulting to 1 when absent or malformed).
func parseToken(part string) (string, float64) {
	part = strings.TrimSpace(part)
	if part == "" {
		return "", 0
	}
	token := part
	q := 1.0
	if idx := strings.Index(part, ";"); idx >= 0 {
		token = strings.TrimSpace(part[:idx])
		for _, p := range strings.Split(part[idx+1:], ";") {
			p = strings.TrimSpace(p)
			if v, ok := strings.CutPrefix(p, "q="); ok {
				if parsed, err := strconv.ParseFloat(v, 64); err == nil {
					q = parsed
				}
			}
		}
	}
	return strings.ToLower(token), q
}
