package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/config"
	"github.com/username/ecoenergy-api/internal/measurement"
)

type Metrics struct {
	registry     *prometheus.Registry
	httpReqCnt   *prometheus.CounterVec
	httpDur      *prometheus.HistogramVec
	httpInfl     *prometheus.GaugeVec
	alertsRaised *prometheus.CounterVec
	measurements *prometheus.CounterVec
}

var (
	_ alert.Observer       = (*Metrics)(nil)
	_ measurement.Recorder = (*Metrics)(nil)
)

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

	alertsRaised := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "alerts_raised_total",
		Help:      "Automatic consumption alerts.",
	}, []string{"severity"})
	measurements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "measurements_recorded_total",
		Help:      "Measurements recorded, split by whether they exceeded the device limit.",
	}, []string{"exceeded"})
	r.MustRegister(alertsRaised, measurements)

	return &Metrics{
		registry:     r,
		httpReqCnt:   httpReqCnt,
		httpDur:      httpDur,
		httpInfl:     httpInfl,
		alertsRaised: alertsRaised,
		measurements: measurements,
	}
}

func (m *Metrics) AlertRaised(_ context.Context, a *alert.Alert) {
	m.alertsRaised.WithLabelValues(string(a.Severity)).Inc()
}

func (m *Metrics) MeasurementRecorded(_ context.Context, _ *measurement.Measurement, exceeded bool) {
	m.measurements.WithLabelValues(strconv.FormatBool(exceeded)).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// route tak dikenal dikelompokkan supaya label tidak meledak
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
