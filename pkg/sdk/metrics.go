package sdk

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects client side request and upload metrics in its own
// registry.
type Metrics struct {
	reg       *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	parts     prometheus.Counter
	partBytes prometheus.Counter
	uploads   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stowage",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Requests sent to the object storage service, partitioned by method and status code.",
	}, []string{"method", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stowage",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Latency of requests sent to the object storage service.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	parts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stowage",
		Subsystem: "multipart",
		Name:      "parts_uploaded_total",
		Help:      "Parts successfully uploaded.",
	})
	partBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stowage",
		Subsystem: "multipart",
		Name:      "part_bytes_total",
		Help:      "Bytes carried by successfully uploaded parts.",
	})
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stowage",
		Subsystem: "multipart",
		Name:      "uploads_total",
		Help:      "Multipart uploads by outcome.",
	}, []string{"result"})

	reg.MustRegister(requests, latency, parts, partBytes, uploads)

	return &Metrics{
		reg:       reg,
		requests:  requests,
		latency:   latency,
		parts:     parts,
		partBytes: partBytes,
		uploads:   uploads,
	}
}

// Registry exposes the registry so callers can add their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requests.WithLabelValues(method, label).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) observePart(size int) {
	if m == nil {
		return
	}
	m.parts.Inc()
	m.partBytes.Add(float64(size))
}

func (m *Metrics) observeUpload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}
