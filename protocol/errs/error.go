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

// Package errs defines the single error kind shared by the HTTP/1 and
// HTTP/2 connection paths, including the two signal values (upgrade and
// GoAway) that aren't faults so much as instructions to the caller.
package errs

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind tags the variant of an Error.
type Kind int

const (
	// KindIO wraps an underlying I/O failure on the connection's socket.
	KindIO Kind = iota
	// KindParse wraps a parse failure: fatal, or "need more bytes" when
	// Partial is set.
	KindParse
	// KindExtension carries a static, human readable message with no
	// underlying cause - used for protocol-level assertions that don't
	// originate from an external error value.
	KindExtension
	// KindServerUpgradeHTTP2 signals that the HTTP/2 client preface was
	// detected; it is not a fault. The caller must hand the connection off
	// via h1.Conn.IntoH2.
	KindServerUpgradeHTTP2
	// KindGoAway is terminal: the connection is being shut down, possibly
	// after flushing PendingWrite bytes.
	KindGoAway
)

// Initiator records who triggered a GoAway.
type Initiator int

const (
	// InitiatorUser means the application code requested the shutdown.
	InitiatorUser Initiator = iota
	// InitiatorLibrary means this package detected a protocol violation.
	InitiatorLibrary
	// InitiatorRemote means the peer sent its own GOAWAY first.
	InitiatorRemote
)

func (i Initiator) String() string {
	switch i {
	case InitiatorUser:
		return "user"
	case InitiatorLibrary:
		return "library"
	case InitiatorRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error is the unified protocol error kind used across the HTTP/1 and
// HTTP/2 code paths.
type Error struct {
	Kind Kind
	// Cause is the wrapped error for KindIO / KindParse.
	Cause error
	// Message is the static description for KindExtension.
	Message string

	// PendingWrite holds bytes the caller should flush to the peer before
	// tearing the socket down: the GOAWAY debug data for KindGoAway, the
	// pending write bytes for KindServerUpgradeHTTP2; empty otherwise.
	PendingWrite []byte
	// PendingRequest carries a request that had already been parsed off
	// the wire before an upgrade was detected, if any. Always nil in this
	// implementation since the HTTP/2 preface is recognized before a
	// request is ever built from the same bytes, but kept to mirror
	// spec.md's ServerUpgradeHttp2(pending_write_bytes, optional_pending_request).
	PendingRequest *http.Request

	// Reason is the GOAWAY error code (KindGoAway only).
	Reason uint32
	// Initiator records who triggered the GoAway (KindGoAway only).
	Initiator Initiator

	// Partial marks a KindParse error as "need more bytes", distinct from
	// a fatal parse failure.
	Partial bool
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindIO:
		return "io error"
	case KindParse:
		if e.Cause != nil {
			return e.Cause.Error()
		}
		return "parse error"
	case KindExtension:
		return fmt.Sprintf("extension: %s", e.Message)
	case KindServerUpgradeHTTP2:
		return "received http/2 upgrade preface"
	case KindGoAway:
		return fmt.Sprintf("go away frame (reason=%d initiator=%s)", e.Reason, e.Initiator)
	default:
		return "unknown protocol error"
	}
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsPartial reports whether err is a KindParse error signalling "wait for
// more bytes" rather than a fatal parse failure.
func IsPartial(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindParse && pe.Partial
	}
	return false
}

// IsServerUpgradeHTTP2 reports whether err is the HTTP/2 upgrade signal.
func IsServerUpgradeHTTP2(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindServerUpgradeHTTP2
	}
	return false
}

// IsGoAway reports whether err is a terminal GoAway.
func IsGoAway(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindGoAway
	}
	return false
}

// FromIO wraps cause as a KindIO Error.
func FromIO(cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindIO, Cause: errors.WithStack(cause)}
}

// FromParse wraps cause as a KindParse Error. partial signals whether more
// bytes could resolve it.
func FromParse(cause error, partial bool) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindParse, Cause: cause, Partial: partial}
}

// Extension builds a KindExtension Error from a static message.
func Extension(message string) error {
	return &Error{Kind: KindExtension, Message: message}
}

// ServerUpgradeHTTP2 builds the signal value the HTTP/1 I/O buffer surfaces
// when it recognizes the client connection preface.
func ServerUpgradeHTTP2(pendingWrite []byte, pendingRequest *http.Request) error {
	return &Error{
		Kind:           KindServerUpgradeHTTP2,
		PendingWrite:   pendingWrite,
		PendingRequest: pendingRequest,
	}
}

// GoAway builds a terminal GoAway error.
func GoAway(debug []byte, reason uint32, initiator Initiator) error {
	return &Error{
		Kind:         KindGoAway,
		PendingWrite: debug,
		Reason:       reason,
		Initiator:    initiator,
	}
}

// LibraryGoAway is the shorthand the codec reaches for when it detects a
// protocol violation itself, with no debug payload to flush.
func LibraryGoAway(reason uint32) error {
	return GoAway(nil, reason, InitiatorLibrary)
}
