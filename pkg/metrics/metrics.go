package metrics

import (
	"net/http"
	"strconv"
	"time"

	"restaurant-backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry with HTTP and domain collectors.
// All recording methods are safe to call on a nil receiver.
type Metrics struct {
	registry      *prometheus.Registry
	httpReqCnt    *prometheus.CounterVec
	httpDur       *prometheus.HistogramVec
	httpInfl      *prometheus.GaugeVec
	paymentCnt    *prometheus.CounterVec
	paymentAmount *prometheus.CounterVec
	correctionCnt *prometheus.CounterVec
	rejectionCnt  *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	paymentCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "payments_recorded_total"}, []string{"method", "status"})
	paymentAmount := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "payments_amount_total"}, []string{"method"})
	correctionCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "invoice_corrections_decided_total"}, []string{"type", "decision"})
	rejectionCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "business_rule_rejections_total"}, []string{"kind"})
	r.MustRegister(paymentCnt, paymentAmount, correctionCnt, rejectionCnt)

	return &Metrics{
		registry:      r,
		httpReqCnt:    httpReqCnt,
		httpDur:       httpDur,
		httpInfl:      httpInfl,
		paymentCnt:    paymentCnt,
		paymentAmount: paymentAmount,
		correctionCnt: correctionCnt,
		rejectionCnt:  rejectionCnt,
	}
}

// PaymentRecorded counts a stored payment; amount only counts toward completed ones.
func (m *Metrics) PaymentRecorded(method, status string, amount float64) {
	if m == nil {
		return
	}
	m.paymentCnt.WithLabelValues(method, status).Inc()
	if status == "completed" {
		m.paymentAmount.WithLabelValues(method).Add(amount)
	}
}

func (m *Metrics) CorrectionDecided(correctionType, decision string) {
	if m == nil {
		return
	}
	m.correctionCnt.WithLabelValues(correctionType, decision).Inc()
}

// Rejected counts business-rule refusals such as insufficient_stock.
func (m *Metrics) Rejected(kind string) {
	if m == nil {
		return
	}
	m.rejectionCnt.WithLabelValues(kind).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
