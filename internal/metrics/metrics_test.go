package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.LeadsIngested.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.LeadsIngested))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.LeadsIngested))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Exports.WithLabelValues("csv").Inc()
	m.LeadsStored.Set(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `celerix_leads_exports_total{format="csv"} 1`)
	assert.Contains(t, string(body), "celerix_leads_stored 4")
}
