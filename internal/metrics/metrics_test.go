package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AuthzDecisionsTotal.WithLabelValues("permission", "granted").Inc()
	m.AuthzDecisionsTotal.WithLabelValues("permission", "granted").Inc()
	m.CacheHitsTotal.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("permission", "granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))

	assert.Panics(t, func() { New(reg) })
}
