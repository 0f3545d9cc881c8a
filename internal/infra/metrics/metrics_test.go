package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNopMetrics(t *testing.T) {
	m := NewNop()

	require.NotPanics(t, func() {
		m.RecordCycle("scheduled", "success", 0.2)
		m.AddPairsFormed(3)
		m.SetUnpaired(1)
		m.IncRematch("paired")
		m.IncFeedbackResponse("missed")
		m.AddFeedbackExpired(0)
		m.IncFeedbackMismatch()
		m.IncAttrition()
		m.IncNotifierFailure("dm")
	})
}

func TestPrometheusCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordCycle("manual", "success", 0.1)
	p.RecordCycle("manual", "success", 0.3)
	p.RecordCycle("scheduled", "conflict", 0.01)
	p.AddPairsFormed(4)
	p.SetUnpaired(1)
	p.IncRematch("pooled")
	p.IncFeedbackResponse("happened")
	p.AddFeedbackExpired(2)
	p.IncFeedbackMismatch()
	p.IncAttrition()
	p.IncNotifierFailure("announce")

	require.InDelta(t, 2, testutil.ToFloat64(p.cycles.WithLabelValues("manual", "success")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.cycles.WithLabelValues("scheduled", "conflict")), 0)
	require.InDelta(t, 4, testutil.ToFloat64(p.pairsFormed), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.unpaired), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.rematches.WithLabelValues("pooled")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.feedbackExpired), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.attritions), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestPrometheusCollector_DefaultNamespace(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry(), "")
	require.Equal(t, "pairing", p.namespace)
}
