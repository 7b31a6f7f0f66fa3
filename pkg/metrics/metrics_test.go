package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"restaurant-backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDomainCounters(t *testing.T) {
	m := New(config.MetricsConfig{Namespace: "test"})

	m.PaymentRecorded("cash", "completed", 12.5)
	m.PaymentRecorded("cash", "pending", 3)
	m.CorrectionDecided("refund", "approved")
	m.Rejected("insufficient_stock")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.paymentCnt.WithLabelValues("cash", "completed")))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.paymentAmount.WithLabelValues("cash")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.correctionCnt.WithLabelValues("refund", "approved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rejectionCnt.WithLabelValues("insufficient_stock")))
}

func TestNilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PaymentRecorded("cash", "completed", 1)
		m.CorrectionDecided("void", "rejected")
		m.Rejected("conflict")
	})
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(config.MetricsConfig{Namespace: "test"})

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `test_http_requests_total{method="GET",route="/ping",status="200"} 1`))
}
