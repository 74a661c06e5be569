package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.GuardrailHit("diagnosis")
	m.GuardrailHit("diagnosis")
	m.BackendAttempt("ollama", "retry")
	m.TurnFinished("freeform_chat", "completed", 2*time.Second)
	m.SubscriberAdded()
	m.SubscriberAdded()
	m.SubscriberRemoved("write_error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GuardrailHitsTotal.WithLabelValues("diagnosis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendAttemptsTotal.WithLabelValues("ollama", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("freeform_chat", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscribersActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscribersDroppedTotal.WithLabelValues("write_error")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.HTTPRequest("GET", 200, time.Millisecond)
		m.BackendProbe(false)
		m.FirstFragment(time.Second)
		m.Synthesis("failed")
		m.WorkerTask("panic")
		m.EventPublished("assistant_delta")
		m.ReportFinished("completed")
	})
}
