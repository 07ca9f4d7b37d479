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
	"github.com/packetd/dualproto/protocol/bytebuf"
)

// PushPromise describes a server-initiated resource push: the synthetic
// request the client would have made, attached to a brand new stream.
type PushPromise struct {
	Method    string
	Path      string
	Authority string
	Scheme    string
}

// sendResponse drives one response to completion on its stream, grounded
// on protocol/http2/send_response.rs's SendResponse: encode the header
// block exactly once (as HEADERS, or as PUSH_PROMISE + HEADERS on the
// newly reserved stream when this is a push), then drain the body into
// DATA frames. HEAD requests suppress the body per spec.md §4.5 even if
// the handler wrote one.
type sendResponse struct {
	streamID     StreamID
	pushPromise  *PushPromise
	pushStreamID StreamID
	response     *Response
	method       string

	headerSent bool
	bodyDone   bool
}

func newSendResponse(streamID StreamID, method string, res *Response) *sendResponse {
	return &sendResponse{streamID: streamID, method: method, response: res}
}

// newPushSendResponse is newSendResponse for a push: the response is
// encoded onto pushStreamID (a freshly reserved, locally-initiated
// stream) after a PUSH_PROMISE is sent on streamID announcing it.
func newPushSendResponse(streamID, pushStreamID StreamID, promise PushPromise, res *Response) *sendResponse {
	return &sendResponse{
		streamID:     streamID,
		pushPromise:  &promise,
		pushStreamID: pushStreamID,
		method:       promise.Method,
		response:     res,
	}
}

// suppressesBody reports whether the body must never be written
// regardless of what the handler produced (spec.md §4.5: HEAD requests).
func (s *sendResponse) suppressesBody() bool {
	return methodForbidsBody(s.method) && s.method == "HEAD"
}

// encode writes whatever of the header block and body is ready to go,
// returning true once the full response (including end-stream) has been
// flushed. It is safe to call repeatedly as more body bytes arrive.
func (s *sendResponse) encode(codec *Codec) (bool, error) {
	targetStream := s.streamID

	if !s.headerSent {
		if s.pushPromise != nil {
			promiseFields := pushRequestHeaderFields(
				s.pushPromise.Method, s.pushPromise.Path, s.pushPromise.Authority, s.pushPromise.Scheme, nil,
			)
			if err := codec.SendPushPromise(s.streamID, s.pushStreamID, promiseFields); err != nil {
				return false, err
			}
			targetStream = s.pushStreamID
		}

		noBody := s.suppressesBody() || s.response.Body == nil || s.response.Body.IsEnd() && s.response.Body.BodyLen() == 0
		if err := codec.SendHeaders(targetStream, responseHeaderFields(s.response), noBody); err != nil {
			return false, err
		}
		s.headerSent = true
		s.streamID = targetStream
		if noBody {
			s.bodyDone = true
			return true, nil
		}
	} else {
		targetStream = s.streamID
	}

	if s.bodyDone {
		return true, nil
	}

	if s.suppressesBody() {
		s.bodyDone = true
		return true, nil
	}

	bd := s.response.Body
	dst := bytebuf.New(0)
	// TryEncode with chunked=false: HTTP/2 DATA frames carry raw bytes,
	// no HTTP/1.1 chunked framing.
	if _, err := bd.TryEncode(dst, false); err != nil {
		return false, err
	}
	if dst.Len() > 0 || bd.IsEnd() {
		if _, err := codec.SendData(targetStream, dst.Bytes(), bd.IsEnd()); err != nil {
			return false, err
		}
	}
	if bd.IsEnd() {
		s.bodyDone = true
		return true, nil
	}
	return false, nil
}
