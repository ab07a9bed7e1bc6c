package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(MetricsTestSuite))

func Test(t *testing.T) {
	gc.TestingT(t)
}

type MetricsTestSuite struct{}

func (s *MetricsTestSuite) TestReason(c *gc.C) {
	c.Assert(Reason(common.UnsupportedMediaError("text/plain")), gc.Equals, "unsupported_media")
	c.Assert(Reason(common.DecodeError(errors.New("x"))), gc.Equals, "decode")
	c.Assert(Reason(common.RecognitionError(errors.New("x"))), gc.Equals, "recognition")
	c.Assert(Reason(common.UnauthenticatedError()), gc.Equals, "unauthenticated")
	c.Assert(Reason(context.Canceled), gc.Equals, "other")
}

func (s *MetricsTestSuite) TestCounters(c *gc.C) {
	m := New(prometheus.NewRegistry())
	m.ObserveSuccess("verified", time.Second)
	m.ObserveSuccess("verified", time.Second)
	m.ObserveFailure(common.DecodeError(errors.New("x")), time.Second)

	c.Assert(counterValue(c, m.Attempts.WithLabelValues("verified")), gc.Equals, float64(2))
	c.Assert(counterValue(c, m.Attempts.WithLabelValues("failed")), gc.Equals, float64(1))
	c.Assert(counterValue(c, m.Failures.WithLabelValues("decode")), gc.Equals, float64(1))
}

func (s *MetricsTestSuite) TestNilMetricsAreNoops(c *gc.C) {
	var m *Metrics
	m.ObservePage(1, time.Second)
	m.ObserveSuccess("verified", time.Second)
	m.ObserveFailure(errors.New("x"), time.Second)
}

func counterValue(c *gc.C, counter prometheus.Counter) float64 {
	var m dto.Metric
	c.Assert(counter.Write(&m), gc.IsNil)
	return m.GetCounter().GetValue()
}
