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

package adminserver

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/dualproto/confengine"
)

func loadConf(t *testing.T, yamlSrc string) *confengine.Config {
	t.Helper()
	conf, err := confengine.LoadContent([]byte(yamlSrc))
	require.NoError(t, err)
	return conf
}

func TestNewDisabledByDefault(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestNewEnabledRegistersRoutes(t *testing.T) {
	conf := loadConf(t, "admin:\n  enabled: true\n  address: 127.0.0.1:0\n  pprof: true\n")
	s, err := New(conf)
	require.NoError(t, err)
	require.NotNil(t, s)

	req := httptest.NewRequest("GET", "/-/build", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "dualproto")
}

func TestMetricsRouteServed(t *testing.T) {
	conf := loadConf(t, "admin:\n  enabled: true\n  address: 127.0.0.1:0\n")
	s, err := New(conf)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}
