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

// Package dispatch is the request helper both connection paths call
// through: it injects the client's address, negotiates a response
// encoding, wraps the call in a trace span, and turns an operator error
// into a synthetic 500 rather than letting it reach the connection layer.
package dispatch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/packetd/dualproto/logger"
	"github.com/packetd/dualproto/protocol/compress"
)

// HeaderClientIP is the header HandleRequest injects with the address of
// the peer that opened the connection, the Go-header-map realization of
// the internal "system header" the helper is grounded on.
const HeaderClientIP = "X-Real-Client-Ip"

// Operator is the caller-supplied request handler; HandleRequest is a
// fixed pipeline around whatever Operator the connection constructor was
// given.
type Operator interface {
	Operate(ctx context.Context, req *http.Request) (*http.Response, error)
}

// OperatorFunc adapts a plain function to Operator.
type OperatorFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f OperatorFunc) Operate(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// HandlerOperator adapts a standard net/http.Handler to Operator by
// running it against an in-memory httptest.ResponseRecorder, the bridge
// dispatch.HandleRequest needs to let callers reuse ordinary net/http
// handlers as the operator.
type HandlerOperator struct {
	Handler http.Handler
}

func (h HandlerOperator) Operate(ctx context.Context, req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	h.Handler.ServeHTTP(rec, req.WithContext(ctx))
	return rec.Result(), nil
}

var tracer = otel.Tracer("github.com/packetd/dualproto/protocol/dispatch")

// HandleRequest is the fixed per-request pipeline both h1 and h2
// connections call: inject the client IP header, open a trace span,
// dispatch to op, negotiate a response encoding from Accept-Encoding, and
// turn any operator error into a synthetic 500 instead of propagating it.
func HandleRequest(ctx context.Context, req *http.Request, clientAddr string, op Operator) *http.Response {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set(HeaderClientIP, clientAddr)

	requestID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "dispatch.HandleRequest",
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.URL.Path),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	res, err := op.Operate(ctx, req)
	if err != nil {
		logger.Errorf("dispatch: operator failed for request %s %s (id=%s): %v", req.Method, req.URL.Path, requestID, err)
		span.RecordError(err)
		return internalServerError()
	}

	applyEncoding(req, res)
	return res
}

// applyEncoding negotiates a Content-Encoding against the request's
// Accept-Encoding header and, when one was picked and the response isn't
// already encoded, recompresses the response body in place.
func applyEncoding(req *http.Request, res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	if res.Header.Get("Content-Encoding") != "" {
		return
	}
	enc, ok := compress.Negotiate(req.Header.Get("Accept-Encoding"))
	if !ok {
		return
	}

	raw, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		res.Body = io.NopCloser(bytes.NewReader(nil))
		return
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	w := enc.NewWriter(buf)
	if _, err := w.Write(raw); err != nil {
		res.Body = io.NopCloser(bytes.NewReader(raw))
		return
	}
	if err := w.Close(); err != nil {
		res.Body = io.NopCloser(bytes.NewReader(raw))
		return
	}

	encoded := append([]byte(nil), buf.Bytes()...)
	res.Header.Set("Content-Encoding", string(enc.Name()))
	res.Header.Set("Vary", "Accept-Encoding")
	res.ContentLength = int64(len(encoded))
	res.Body = io.NopCloser(bytes.NewReader(encoded))
}

func internalServerError() *http.Response {
	body := []byte("internal server error\n")
	return &http.Response{
		StatusCode:    http.StatusInternalServerError,
		Status:        "500 Internal Server Error",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}
