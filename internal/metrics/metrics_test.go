package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesInstruments(t *testing.T) {
	m := New()
	m.PaymentsCreated.Add(3)
	m.Transitions.WithLabelValues("paid", "ok").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PaymentsCreated))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "payouts_payments_created_total 3"))
	assert.True(t, strings.Contains(body, `payouts_payment_transitions_total{result="ok",status="paid"} 1`))
}
