package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveBatch(OutcomeCommitted, 3*time.Millisecond)
	m.ObserveBatch(OutcomeSuperseded, time.Millisecond)
	m.ObserveBatch(OutcomeCommitted, time.Millisecond)
	m.ObserveNode("Valid")
	m.ObserveNode("CycleError")
	m.ObserveNode("CycleError")
	m.SetGraph(10, 2)
	m.ObserveAction(ActionPublished)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(OutcomeSuperseded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("CycleError")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.GraphNodes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CycleNodes))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BatchDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues(ActionPublished)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBatch(OutcomeNoop, 0)
		m.ObserveNode("Valid")
		m.SetGraph(1, 0)
		m.ObserveAction(ActionFailed)
	})

	unregistered, err := New(nil)
	require.NoError(t, err)
	unregistered.ObserveNode("Valid")
}
