package aws

import (
	"time"

	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudbridge",
			Subsystem: "aws",
			Name:      "api_requests_total",
			Help:      "Number of EC2 API requests by operation and result code",
		},
		[]string{"operation", "code"},
	)
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cloudbridge",
			Subsystem: "aws",
			Name:      "api_request_duration_seconds",
			Help:      "Latency of EC2 API requests, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(apiRequests, apiRequestDuration)
}

// metricsHandler records every completed SDK request
var metricsHandler = request.NamedHandler{
	Name: "cloudbridge.metrics",
	Fn:   recordRequest,
}

func recordRequest(r *request.Request) {
	op := "unknown"
	if r.Operation != nil {
		op = r.Operation.Name
	}
	code := "ok"
	if r.Error != nil {
		code = errorCode(r.Error)
		if code == "" {
			code = "error"
		}
	}
	apiRequests.WithLabelValues(op, code).Inc()
	if !r.Time.IsZero() {
		apiRequestDuration.WithLabelValues(op).Observe(time.Since(r.Time).Seconds())
	}
}
