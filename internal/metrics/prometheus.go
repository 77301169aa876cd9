package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements Recorder and also carries the HTTP server metrics.
type Prometheus struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	orders      prometheus.Counter
	payments    *prometheus.CounterVec
	settlements *prometheus.CounterVec
	conflicts   prometheus.Counter
	webhooks    *prometheus.CounterVec
	gatherer    prometheus.Gatherer
}

// NewPrometheus registers the collectors on reg. A nil reg uses a fresh registry.
func NewPrometheus(namespace string, reg *prometheus.Registry) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	p := &Prometheus{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		orders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders written in pending state.",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_requests_total",
			Help:      "PromptPay intents requested, by result.",
		}, []string{"result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Reconciliation outcomes.",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_conflicts_total",
			Help:      "Settlement transactions cancelled by a concurrent writer and retried.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by event type and result.",
		}, []string{"type", "result"}),
		gatherer: reg,
	}
	reg.MustRegister(p.Requests, p.LatencyMS, p.orders, p.payments, p.settlements, p.conflicts, p.webhooks)
	return p
}

func (p *Prometheus) OrderCreated() { p.orders.Inc() }

func (p *Prometheus) PaymentRequested(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	p.payments.WithLabelValues(result).Inc()
}

func (p *Prometheus) Settled(outcome string) { p.settlements.WithLabelValues(outcome).Inc() }

func (p *Prometheus) SettleConflict() { p.conflicts.Inc() }

func (p *Prometheus) WebhookReceived(eventType, result string) {
	p.webhooks.WithLabelValues(eventType, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Middleware counts requests and observes latency per route.
func (p *Prometheus) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		p.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		p.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}
