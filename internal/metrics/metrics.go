// Package metrics exposes Prometheus instruments for verification attempts.
package metrics

import (
	"errors"
	"time"

	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the pipeline instruments.
type Metrics struct {
	Attempts    *prometheus.CounterVec
	Failures    *prometheus.CounterVec
	PageOCR     prometheus.Histogram
	AttemptTime prometheus.Histogram
}

// New creates the instruments and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_attempts_total",
			Help: "Verification attempts by resulting status.",
		}, []string{"status"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_failures_total",
			Help: "Failed verification attempts by reason.",
		}, []string{"reason"}),
		PageOCR: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "certverify_page_ocr_seconds",
			Help:    "Time to rasterize and recognize one page.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		AttemptTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "certverify_attempt_seconds",
			Help:    "End to end verification attempt latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Attempts, m.Failures, m.PageOCR, m.AttemptTime)
	}
	return m
}

// ObservePage records one page's OCR latency.
func (m *Metrics) ObservePage(_ int, d time.Duration) {
	if m == nil {
		return
	}
	m.PageOCR.Observe(d.Seconds())
}

// ObserveSuccess records a finished attempt.
func (m *Metrics) ObserveSuccess(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(status).Inc()
	m.AttemptTime.Observe(d.Seconds())
}

// ObserveFailure records a failed attempt under its error reason.
func (m *Metrics) ObserveFailure(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues("failed").Inc()
	m.Failures.WithLabelValues(Reason(err)).Inc()
	m.AttemptTime.Observe(d.Seconds())
}

// Reason classifies err into a low-cardinality label.
func Reason(err error) string {
	switch {
	case errors.Is(err, common.ErrUnsupportedMedia):
		return "unsupported_media"
	case errors.Is(err, common.ErrDecode):
		return "decode"
	case errors.Is(err, common.ErrRecognition):
		return "recognition"
	case errors.Is(err, common.ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "other"
	}
}
