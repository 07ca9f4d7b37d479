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
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/packetd/dualproto/protocol/body"
	"github.com/packetd/dualproto/protocol/bytebuf"
)

// toReadCloser drains b to completion and hands the operator an ordinary
// io.ReadCloser - dispatch.Operator is the net/http.Handler-shaped
// boundary, so the streaming body is fully materialized at this one
// crossing point rather than threaded through as body.Body.
func toReadCloser(ctx context.Context, b *body.Body) io.ReadCloser {
	if b == nil {
		return http.NoBody
	}
	dst := bytebuf.New(b.BodyLen())
	_, _ = b.ReadAll(ctx, dst)
	return io.NopCloser(bytes.NewReader(dst.Bytes()))
}

// fromReadCloser reads rc to completion and wraps it as an already-ended
// body.Body for the connection's outbound path.
func fromReadCloser(rc io.ReadCloser) *body.Body {
	if rc == nil {
		return body.Empty()
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return body.Empty()
	}
	return body.Only(data)
}
