package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRecord(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, "combat", m.GetConfig().Namespace)

	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg), "duplicate registration must fail")

	m.RecordFight(true)
	m.RecordFight(true)
	m.RecordCrime(false)
	m.RecordProgress("money_earned", 50)
	m.RecordProgress("money_earned", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FightsTotal.WithLabelValues("attacker_won")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CrimesTotal.WithLabelValues("failure")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.ProgressTotal.WithLabelValues("money_earned")))
}

func TestNilMetricsSafe(t *testing.T) {
	var m *CombatMetrics
	assert.NotPanics(t, func() {
		m.RecordDBQuery("select", true, 0.1)
		m.RecordTx("fight", "ok", 0.1)
		m.RecordBusy()
		m.RecordEvent("kafka", false)
	})
}
