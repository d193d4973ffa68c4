package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndExposition(t *testing.T) {
	m := NewMetrics()
	m.RecordNotification("SLA_BREACH", "push", OutcomeSent)
	m.RecordNotification("SLA_BREACH", "push", OutcomeSent)
	m.RecordNotification("SLA_BREACH", "email", OutcomeFailed)
	m.RecordEscalation(true)
	m.RecordJobRun("sla_violation", "ok", 20*time.Millisecond)
	m.RecordRequest("/tickets/:id", "GET", 200, time.Millisecond)

	assert.Equal(t, 2.0, m.NotificationCount("SLA_BREACH", "push", OutcomeSent))
	assert.Equal(t, 1.0, m.NotificationCount("SLA_BREACH", "email", OutcomeFailed))
	assert.Equal(t, 1.0, m.EscalationCount(true))
	assert.Equal(t, 0.0, m.EscalationCount(false))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ticket_sla_monitor_job_runs_total")
	assert.Contains(t, string(body), `route="/tickets/:id"`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordNotification("SLA_WARNING", "push", OutcomeSent)
	m.RecordHealthUpdate("ok")
	assert.Equal(t, 0.0, m.NotificationCount("SLA_WARNING", "push", OutcomeSent))
}
