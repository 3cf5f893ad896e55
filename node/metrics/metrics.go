// Copyright 2021 PairMesh, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides Prometheus metrics for the hub clients.
package metrics

import (
	"net/http"
	"time"

	"github.com/pairmesh/pairsync/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection state, one series per server and state set to 1 for the
	// current state.
	serverState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pairsync_server_state",
			Help: "Current connection state per server",
		},
		[]string{"server", "state"},
	)

	connectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairsync_connect_attempts_total",
			Help: "Total connect attempts per server",
		},
		[]string{"server"},
	)

	connectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairsync_connect_failures_total",
			Help: "Total failed connect attempts per server and error kind",
		},
		[]string{"server", "kind"},
	)

	transportReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairsync_transport_reconnects_total",
			Help: "Total transport level reconnects per server",
		},
		[]string{"server"},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairsync_events_total",
			Help: "Total events received per server",
		},
		[]string{"server", "method"},
	)

	invocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pairsync_invocation_duration_seconds",
			Help:    "Hub invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server", "method"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetState records the current state of a server. states lists every
// state name so the previous one is reset.
func SetState(server protocol.ServerIndex, state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		serverState.WithLabelValues(server.String(), s).Set(v)
	}
}

// RecordConnectAttempt records a connect attempt.
func RecordConnectAttempt(server protocol.ServerIndex) {
	connectAttemptsTotal.WithLabelValues(server.String()).Inc()
}

// RecordConnectFailure records a failed connect attempt.
func RecordConnectFailure(server protocol.ServerIndex, kind string) {
	connectFailuresTotal.WithLabelValues(server.String(), kind).Inc()
}

// RecordTransportReconnect records a transport level reconnect.
func RecordTransportReconnect(server protocol.ServerIndex) {
	transportReconnectsTotal.WithLabelValues(server.String()).Inc()
}

// RecordEvent records an inbound event.
func RecordEvent(server protocol.ServerIndex, method string) {
	eventsTotal.WithLabelValues(server.String(), method).Inc()
}

// RecordInvocation records the duration of an invocation.
func RecordInvocation(server protocol.ServerIndex, method string, duration time.Duration) {
	invocationDuration.WithLabelValues(server.String(), method).Observe(duration.Seconds())
}
