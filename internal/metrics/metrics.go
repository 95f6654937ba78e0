// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "social_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "social_stream_clients",
		Help: "Connected push stream clients.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_events_published_total",
		Help: "Events delivered to stream subscribers by type.",
	}, []string{"type"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_events_dropped_total",
		Help: "Events dropped because a subscriber was too slow.",
	}, []string{"type"})

	SessionsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "social_sessions_purged_total",
		Help: "Expired sessions removed by the janitor.",
	})

	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_auth_failures_total",
		Help: "Rejected logins and registrations by reason.",
	}, []string{"reason"})
)
