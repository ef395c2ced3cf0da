// Copyright 2024 The acsrs Authors
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

// Package metrics exposes the ACS Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acsrs_sessions_total",
		Help: "CWMP sessions opened.",
	})
	SessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "acsrs_sessions_open",
		Help: "CWMP sessions currently open.",
	})
	InformsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acsrs_informs_total",
		Help: "Inform RPCs received from CPEs.",
	})
	ConnectionRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acsrs_connection_requests_total",
		Help: "Connection Requests issued to CPEs.",
	})
	ConnectionRequestFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acsrs_connection_request_failures_total",
		Help: "Connection Requests that failed.",
	})
	TransfersDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acsrs_transfers_dispatched_total",
		Help: "Queued transfers sent to CPEs.",
	})
	TransfersAnswered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acsrs_transfers_answered_total",
		Help: "Transfer replies received from CPEs.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
