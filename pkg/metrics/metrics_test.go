package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func Test_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)

	m.ObserveSign("ed25519ph-sha512", 11, time.Millisecond, nil)
	m.ObserveSign("ed25519ph-sha512", 0, time.Millisecond, errors.New("boom"))
	m.ObserveVerify("ed25519ph-sha512", 11, time.Millisecond, true, nil)
	m.ObserveVerify("ed25519ph-sha512", 11, time.Millisecond, false, nil)
	m.ObserveVerify("ed25519ph-sha512", 3, time.Millisecond, false, errors.New("corrupt"))

	t.Run("Should count sign results", func(t *testing.T) {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.signTotal.WithLabelValues("ed25519ph-sha512", ResultOK)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.signTotal.WithLabelValues("ed25519ph-sha512", ResultError)))
	})

	t.Run("Should count verify results", func(t *testing.T) {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.verifyTotal.WithLabelValues("ed25519ph-sha512", ResultValid)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.verifyTotal.WithLabelValues("ed25519ph-sha512", ResultInvalid)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.verifyTotal.WithLabelValues("ed25519ph-sha512", ResultError)))
	})

	t.Run("Should sum processed bytes", func(t *testing.T) {
		assert.Equal(t, 11.0, testutil.ToFloat64(m.bytesProcessed.WithLabelValues("ed25519ph-sha512", OperationSign)))
		assert.Equal(t, 25.0, testutil.ToFloat64(m.bytesProcessed.WithLabelValues("ed25519ph-sha512", OperationVerify)))
	})

	t.Run("Should expose the metric names", func(t *testing.T) {
		expected := `
# HELP detsig_sign_total No of signing sessions partitioned by scheme and result
# TYPE detsig_sign_total counter
detsig_sign_total{result="error",scheme="ed25519ph-sha512"} 1
detsig_sign_total{result="ok",scheme="ed25519ph-sha512"} 1
`
		require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "detsig_sign_total"))
		assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
	})
}

func Test_MetricsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewMetrics(registry)
	require.NoError(t, err)

	_, err = NewMetrics(registry)
	require.Error(t, err)
}

func Test_NilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSign("ecdsa-p256-sha256", 1, time.Second, nil)
		m.ObserveVerify("ecdsa-p256-sha256", 1, time.Second, true, nil)
	})
}

func Test_LogSummary(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)
	m.ObserveSign("ecdsa-p256-sha256", 5, time.Millisecond, nil)

	core, logs := observer.New(zap.DebugLevel)
	LogSummary(registry, zap.New(core))

	var names []string
	for _, entry := range logs.All() {
		names = append(names, entry.ContextMap()["metric"].(string))
	}
	assert.Contains(t, names, "detsig_sign_total")
	assert.Contains(t, names, "detsig_bytes_processed_total")
	assert.Contains(t, names, "detsig_operation_duration_seconds")
}
