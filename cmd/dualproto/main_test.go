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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/dualproto/common"
	"github.com/packetd/dualproto/confengine"
)

func TestLoadShutdownTimeoutDefaultsWhenAbsent(t *testing.T) {
	conf, err := confengine.LoadContent([]byte("server:\n  address: 127.0.0.1:0\n"))
	require.NoError(t, err)
	assert.Equal(t, defaultShutdownTimeout, loadShutdownTimeout(conf))
}

func TestLoadShutdownTimeoutHonorsOverride(t *testing.T) {
	conf, err := confengine.LoadContent([]byte("server:\n  options:\n    shutdownTimeoutSeconds: 30\n"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, loadShutdownTimeout(conf))
}

func TestLoadShutdownTimeoutIgnoresNonPositiveOverride(t *testing.T) {
	conf, err := confengine.LoadContent([]byte("server:\n  options:\n    shutdownTimeoutSeconds: -1\n"))
	require.NoError(t, err)
	assert.Equal(t, defaultShutdownTimeout, loadShutdownTimeout(conf))
}

func TestNewServerBoundsConnsToConcurrency(t *testing.T) {
	conf, err := confengine.LoadContent([]byte("server:\n  address: 127.0.0.1:0\n"))
	require.NoError(t, err)

	srv, err := newServer(conf)
	require.NoError(t, err)
	defer srv.listener.Close()

	assert.Equal(t, common.Concurrency(), cap(srv.conns))
}
