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

package errs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPartial(t *testing.T) {
	partial := FromParse(io.ErrUnexpectedEOF, true)
	assert.True(t, IsPartial(partial))

	fatal := FromParse(io.ErrUnexpectedEOF, false)
	assert.False(t, IsPartial(fatal))

	assert.False(t, IsPartial(FromIO(io.EOF)))
}

func TestIsServerUpgradeHTTP2(t *testing.T) {
	err := ServerUpgradeHTTP2(nil, nil)
	assert.True(t, IsServerUpgradeHTTP2(err))
	assert.False(t, IsGoAway(err))
}

func TestIsGoAway(t *testing.T) {
	err := LibraryGoAway(1)
	assert.True(t, IsGoAway(err))
	var pe *Error
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, InitiatorLibrary, pe.Initiator)
}

func TestErrorUnwrap(t *testing.T) {
	cause := io.ErrClosedPipe
	err := FromIO(cause)
	assert.ErrorIs(t, err, cause)
}
