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

package h1

import (
	"net/http"

	"github.com/packetd/dualproto/protocol/body"
)

// Request pairs a parsed *http.Request with the streaming Body that feeds
// it, re-typing spec.md's Request<RecvStream>. Body shadows the promoted
// (*http.Request).Body field.
type Request struct {
	*http.Request
	Body *body.Body
}

// Response pairs a *http.Response with its streaming Body, re-typing
// spec.md's Response<RecvStream>.
type Response struct {
	*http.Response
	Body *body.Body
}

// noBodyMethods are the HTTP methods spec.md calls out as forbidding a
// request body (GET/HEAD/OPTIONS/...): such requests are attached an
// already-ended, empty Body rather than a channel-backed streaming one.
var noBodyMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

func methodForbidsBody(method string) bool {
	return noBodyMethods[method]
}
