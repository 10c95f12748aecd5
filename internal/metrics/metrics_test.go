package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestServeDecisionsCounter(t *testing.T) {
	before := testutil.ToFloat64(ServeDecisions.WithLabelValues("blob", "local"))
	ServeDecisions.WithLabelValues("blob", "local").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ServeDecisions.WithLabelValues("blob", "local")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	Migrations.WithLabelValues("ok").Inc()
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "assetvault_migrations_total"))
}
