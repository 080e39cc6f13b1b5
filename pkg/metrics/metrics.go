package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes, one per dispatcher classification.
const (
	OutcomeSuccess        = "success"
	OutcomeNotFound       = "not_found"
	OutcomeUnauthorized   = "unauthorized"
	OutcomeBatchErrorList = "batch_error_list"
	OutcomeAPIError       = "api_error"
	OutcomeTransport      = "transport_error"
	OutcomeRaw            = "raw"
)

var (
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recommend_requests_total",
		Help: "Total number of Recommend API requests by outcome",
	}, []string{"method", "outcome"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recommend_request_duration_seconds",
		Help:    "Time spent waiting for Recommend API responses",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 12), // 10ms to ~20s
	}, []string{"method"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recommend_token_refresh_total",
		Help: "Token refresh exchanges triggered by the call guard",
	}, []string{"trigger", "result"})

	BatchChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recommend_batch_chunks_total",
		Help: "Batch chunks sent by result",
	}, []string{"result"})
)
