package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firecast/internal/model"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveRequest("/predict", http.StatusOK, 0.01)
	m.ObserveRequest("/predict", http.StatusOK, 0.02)
	m.ObserveRequest("/predict", http.StatusUnprocessableEntity, 0.001)
	m.IncPrediction(model.OperationPredict)
	m.IncPrediction(model.OperationExplain)
	m.IncPrediction(model.OperationExplain)
	m.IncCacheHit()

	assert.InDelta(t, 2, testutil.ToFloat64(m.requests.WithLabelValues("/predict", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("/predict", "422")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.predictions.WithLabelValues("explain")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cacheHits), 0)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("/x", 200, 1)
		m.IncPrediction(model.OperationPredict)
		m.IncCacheHit()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.IncPrediction(model.OperationPredict)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `firecast_predictions_total{operation="predict"} 1`)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
