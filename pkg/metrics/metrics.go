package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const namespace = "detsig"

const (
	OperationSign   = "sign"
	OperationVerify = "verify"

	ResultOK      = "ok"
	ResultValid   = "valid"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// Metrics records signing and verification outcomes. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	signTotal      *prometheus.CounterVec
	verifyTotal    *prometheus.CounterVec
	bytesProcessed *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		signTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sign_total",
				Help:      "No of signing sessions partitioned by scheme and result",
			},
			[]string{"scheme", "result"},
		),
		verifyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verify_total",
				Help:      "No of verification sessions partitioned by scheme and result",
			},
			[]string{"scheme", "result"},
		),
		bytesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_processed_total",
				Help:      "Total message bytes streamed through the digest",
			},
			[]string{"scheme", "operation"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of signing and verification sessions",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"scheme", "operation"},
		),
	}

	for _, c := range []prometheus.Collector{m.signTotal, m.verifyTotal, m.bytesProcessed, m.duration} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveSign records one signing session.
func (m *Metrics) ObserveSign(scheme string, bytesRead int64, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.signTotal.WithLabelValues(scheme, result).Inc()
	m.observe(scheme, OperationSign, bytesRead, elapsed)
}

// ObserveVerify records one verification session.
func (m *Metrics) ObserveVerify(scheme string, bytesRead int64, elapsed time.Duration, valid bool, err error) {
	if m == nil {
		return
	}
	result := ResultInvalid
	switch {
	case err != nil:
		result = ResultError
	case valid:
		result = ResultValid
	}
	m.verifyTotal.WithLabelValues(scheme, result).Inc()
	m.observe(scheme, OperationVerify, bytesRead, elapsed)
}

func (m *Metrics) observe(scheme, operation string, bytesRead int64, elapsed time.Duration) {
	if bytesRead > 0 {
		m.bytesProcessed.WithLabelValues(scheme, operation).Add(float64(bytesRead))
	}
	m.duration.WithLabelValues(scheme, operation).Observe(elapsed.Seconds())
}

// LogSummary writes every counter gathered from gatherer at debug level.
func LogSummary(gatherer prometheus.Gatherer, logger *zap.Logger) {
	families, err := gatherer.Gather()
	if err != nil {
		logger.Sugar().Debugw("Failed to gather metrics", "error", err)
		return
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			fields := []interface{}{"metric", family.GetName()}
			for _, label := range metric.GetLabel() {
				fields = append(fields, label.GetName(), label.GetValue())
			}
			switch {
			case metric.GetCounter() != nil:
				fields = append(fields, "value", metric.GetCounter().GetValue())
			case metric.GetHistogram() != nil:
				fields = append(fields,
					"count", metric.GetHistogram().GetSampleCount(),
					"sumSeconds", metric.GetHistogram().GetSampleSum(),
				)
			default:
				continue
			}
			logger.Sugar().Debugw("Metric", fields...)
		}
	}
}
