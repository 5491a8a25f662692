package metricsvc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-admin/core/featureswitch"
)

func TestProm(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProm("masomo", reg)

	m.IncResolutions(featureswitch.OutcomeReady)
	m.IncResolutions(featureswitch.OutcomeReady)
	m.IncResolutions(featureswitch.OutcomeBypass)
	m.ObserveFetch(0.2, false)
	m.ObserveFetch(10, true)
	m.SetSessions(3)
	m.ObserveRequest("GET", "/v1/admission/gate", "200", 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.resolutions.WithLabelValues("ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.resolutions.WithLabelValues("bypass")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.fetches.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.fetches.WithLabelValues("error")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.sessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/admission/gate", "200")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProm("masomo", reg)
	m.SetSessions(2)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "masomo_gate_sessions 2"))
}
