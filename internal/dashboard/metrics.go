package dashboard

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/metrics"
	"github.com/alejandrodnm/alphaquant/internal/ports"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics agrupa los collectors que expone /metrics.
type Metrics struct {
	strategy    *prometheus.GaugeVec
	appended    *prometheus.CounterVec
	runs        *prometheus.CounterVec
	requests    *prometheus.CounterVec
	reqDuration *prometheus.HistogramVec
}

// NewMetrics crea los collectors y los registra en reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		strategy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alphaquant_strategy_metric",
				Help: "Latest performance metric per strategy",
			},
			[]string{"strategy", "metric"},
		),
		appended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphaquant_trades_appended_total",
				Help: "Trades appended to the log",
			},
			[]string{"strategy"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphaquant_strategy_runs_total",
				Help: "Live strategy evaluations by outcome",
			},
			[]string{"strategy", "result"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphaquant_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "code"},
		),
		reqDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alphaquant_http_request_duration_seconds",
				Help:    "Histogram of response latency (seconds) for HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
	}
	reg.MustRegister(m.strategy, m.appended, m.runs, m.requests, m.reqDuration)
	return m
}

// ObserveSummary publica cada métrica de cada fila como gauge.
func (m *Metrics) ObserveSummary(rows []ports.StrategySummary) {
	for _, r := range rows {
		for _, k := range metrics.Keys {
			v, _ := r.Metrics.Value(k)
			m.strategy.WithLabelValues(r.Strategy, k).Set(v)
		}
	}
}

// ObserveRun tiene la firma de engine.Observer.
func (m *Metrics) ObserveRun(strategy string, appended int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(strategy, result).Inc()
	m.ObserveAppended(strategy, appended)
}

// ObserveAppended suma trades añadidos al log.
func (m *Metrics) ObserveAppended(strategy string, n int) {
	if n > 0 {
		m.appended.WithLabelValues(strategy).Add(float64(n))
	}
}

// Middleware cuenta requests y latencia por ruta.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(path, method, fmt.Sprintf("%d", c.Writer.Status())).Inc()
		m.reqDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	}
}
