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

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightTierBuckets(t *testing.T) {
	assert.Equal(t, "low", WeightTier(0))
	assert.Equal(t, "low", WeightTier(63))
	assert.Equal(t, "normal", WeightTier(64))
	assert.Equal(t, "normal", WeightTier(191))
	assert.Equal(t, "high", WeightTier(192))
	assert.Equal(t, "high", WeightTier(255))
}

func TestCountersIncrement(t *testing.T) {
	AcceptedConnections.WithLabelValues("h1").Inc()
	HTTP2Upgrades.Inc()
	GoAwayTotal.WithLabelValues("user").Inc()
	HandledRoundtrips.Inc()
	FramesDrained.WithLabelValues(WeightTier(200)).Inc()
}
