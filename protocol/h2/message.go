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
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/http2/hpack"

	"github.com/packetd/dualproto/protocol/body"
)

// Request is an HTTP/2 request reassembled from a HEADERS (+ optional
// CONTINUATION) block and the DATA frames that follow it on the same
// stream.
type Request struct {
	Method    string
	Path      string
	Authority string
	Scheme    string
	Header    http.Header
	Body      *body.Body

	StreamID StreamID
}

// Response is an HTTP/2 response awaiting encode onto a stream.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       *body.Body
}

// noBodyMethods mirrors h1's method table: these never carry a request
// body, and per spec.md §4.5, HEAD responses never carry a response body
// even when a handler wrote one.
var noBodyMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

func methodForbidsBody(method string) bool {
	return noBodyMethods[method]
}

// requestFromHeaders builds a Request from the pseudo-headers and regular
// fields HPACK decoded off a HEADERS frame (RFC 7540 §8.1.2.3).
func requestFromHeaders(streamID StreamID, fields []hpack.HeaderField) *Request {
	req := &Request{Header: make(http.Header, len(fields)), StreamID: streamID}
	for _, f := range fields {
		switch f.Name {
		case ":method":
			req.Method = f.Value
		case ":path":
			req.Path = f.Value
		case ":authority":
			req.Authority = f.Value
		case ":scheme":
			req.Scheme = f.Value
		default:
			if !strings.HasPrefix(f.Name, ":") {
				req.Header.Add(http.CanonicalHeaderKey(f.Name), f.Value)
			}
		}
	}
	return req
}

// responseHeaderFields renders res's status and headers as the
// lowercase-name HPACK field list RFC 7540 §8.1.2 requires, with the
// :status pseudo-header first.
func responseHeaderFields(res *Response) []hpack.HeaderField {
	fields := make([]hpack.HeaderField, 0, 1+len(res.Header))
	fields = append(fields, hpack.HeaderField{Name: ":status", Value: strconv.Itoa(res.StatusCode)})
	for name, values := range res.Header {
		lower := strings.ToLower(name)
		for _, v := range values {
			fields = append(fields, hpack.HeaderField{Name: lower, Value: v})
		}
	}
	return fields
}

// pushRequestHeaderFields renders the synthetic request headers a
// PUSH_PROMISE announces for the resource about to be pushed.
func pushRequestHeaderFields(method, path, authority, scheme string, header http.Header) []hpack.HeaderField {
	fields := []hpack.HeaderField{
		{Name: ":method", Value: method},
		{Name: ":path", Value: path},
		{Name: ":authority", Value: authority},
		{Name: ":scheme", Value: scheme},
	}
	for name, values := range header {
		lower := strings.ToLower(name)
		for _, v := range values {
			fields = append(fields, hpack.HeaderField{Name: lower, Value: v})
		}
	}
	return fields
}
