// Copyright (c) 2026 John Earle
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

// Package metrics exposes Prometheus instruments for the auto-reply service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/belphia/autoreply/internal/models"
)

var (
	// WebhookOutcomes counts terminal webhook outcomes.
	WebhookOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoreply_webhook_outcomes_total",
			Help: "Webhook invocations by terminal status and reason",
		},
		[]string{"status", "reason"}, // reason: ignore reason, failure kind or reply category
	)

	// DispatchDuration measures outbound send latency.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoreply_dispatch_duration_seconds",
			Help:    "Outbound reply send latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~10s
		},
		[]string{"status"},
	)

	// ContactSubmissions counts contact form submissions.
	ContactSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoreply_contact_submissions_total",
			Help: "Contact form submissions by result",
		},
		[]string{"result"}, // result: accepted, invalid, rate_limited, error
	)
)

// RecordOutcome counts one webhook outcome.
func RecordOutcome(o models.Outcome) {
	var label string
	switch o.Status {
	case models.StatusIgnored:
		label = o.Reason.String()
	case models.StatusFailed:
		label = o.Failure.String()
	case models.StatusSent:
		label = o.Category.String()
	}
	WebhookOutcomes.WithLabelValues(o.Status.String(), label).Inc()
}

// RecordDispatch records the latency of one outbound send.
func RecordDispatch(status string, duration time.Duration) {
	DispatchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncrementContact counts one contact form submission.
func IncrementContact(result string) {
	ContactSubmissions.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
