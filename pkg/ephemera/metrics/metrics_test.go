package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/metrics"
)

func TestNew_RegistersAllCollectorsExactlyOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	require.NotNil(t, m)

	require.Panics(t, func() {
		metrics.New(reg)
	}, "registering the same collectors against the same registry twice must fail")
}

func TestCounters_IncrementIndependently(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.BlocksSealed.Inc()
	m.BlocksSealed.Inc()
	m.QueueRejected.Inc()
	m.MessagesDropped.WithLabelValues("unknown_peer").Inc()

	require.Equal(t, float64(2), testutil.ToFloat64(m.BlocksSealed))
	require.Equal(t, float64(1), testutil.ToFloat64(m.QueueRejected))
	require.Equal(t, float64(0), testutil.ToFloat64(m.BlocksFinalised))
}
