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

// Package metrics is this runtime's prometheus surface, re-scoped from
// the teacher's sniffer-oriented gauges to the dual-protocol connection
// lifecycle: accepted connections, HTTP/2 upgrades, active streams, frames
// drained per priority tier, and GOAWAY counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var startTime = time.Now()

var (
	// Uptime reports the process uptime in seconds, scraped as a gauge
	// exactly as the teacher's controller.metrics does.
	Uptime = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dualproto",
		Name:      "uptime_seconds",
		Help:      "Seconds since the process started.",
	}, func() float64 {
		return time.Since(startTime).Seconds()
	})

	// AcceptedConnections counts sockets accepted by the dual-protocol
	// listener, labelled by protocol at accept time; cmd/dualproto labels
	// every accepted socket "h1" and counts later handoffs in HTTP2Upgrades.
	AcceptedConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualproto",
		Name:      "accepted_connections_total",
		Help:      "Connections accepted by the dual-protocol listener.",
	}, []string{"protocol"})

	// HTTP2Upgrades counts HTTP/1 connections that handed off to HTTP/2 via
	// errs.IsServerUpgradeHTTP2 / h1.Conn.IntoH2.
	HTTP2Upgrades = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dualproto",
		Name:      "http2_upgrades_total",
		Help:      "HTTP/1 connections upgraded to HTTP/2.",
	})

	// ActiveStreams tracks currently open HTTP/2 streams across all
	// connections.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dualproto",
		Name:      "http2_active_streams",
		Help:      "HTTP/2 streams currently open.",
	})

	// FramesDrained is a counter of frames drained from the HTTP/2 priority
	// queue, labelled by stream weight tier. Neither h2.PriorityQueue.Drain
	// nor any other code in this module increments it.
	FramesDrained = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualproto",
		Name:      "http2_frames_drained_total",
		Help:      "Frames drained from the priority queue, by weight tier.",
	}, []string{"tier"})

	// GoAwayTotal is a counter of GOAWAY frames sent or received, labelled
	// by who initiated it (errs.Initiator). The h2 connection code that
	// sends and receives GOAWAY does not increment it.
	GoAwayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualproto",
		Name:      "http2_goaway_total",
		Help:      "GOAWAY frames observed, by initiator.",
	}, []string{"initiator"})

	// HandledRoundtrips counts request/response pairs fully flushed,
	// mirroring the teacher's handled_roundtrips_total.
	HandledRoundtrips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dualproto",
		Name:      "handled_roundtrips_total",
		Help:      "Request/response round trips completed.",
	})
)

// WeightTier buckets a stream weight into a small, fixed label set for
// FramesDrained so per-stream cardinality never reaches the registry.
func WeightTier(weight uint8) string {
	switch {
	case weight >= 192:
		return "high"
	case weight >= 64:
		return "normal"
	default:
		return "low"
	}
}
