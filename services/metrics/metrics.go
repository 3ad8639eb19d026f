// Package metricsvc holds the prometheus collectors of the api and the jobs.
package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/escola/core/billing"
)

const namespace = "escola"

type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	boletosCreated prometheus.Counter
	batchRuns      *prometheus.CounterVec
	blobFailures   *prometheus.CounterVec
	overdueMarked  prometheus.Counter
	jobRuns        *prometheus.CounterVec
}

var _ billing.Metrics = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "Handled http requests",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "Http request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		boletosCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "boletos_created_total", Help: "Boletos created, one by one or in batch",
		}),
		batchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "boleto_batches_total", Help: "Batch generations, by outcome",
		}, []string{"outcome"}),
		blobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "blob_failures_total", Help: "Failed blob store calls",
		}, []string{"op"}),
		overdueMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "boletos_marked_overdue_total", Help: "Boletos moved to overdue by the sweep",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_runs_total", Help: "Scheduled job runs, by job and outcome",
		}, []string{"job", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.boletosCreated, m.batchRuns, m.blobFailures, m.overdueMarked, m.jobRuns,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) BoletosCreated(n int) {
	if n > 0 {
		m.boletosCreated.Add(float64(n))
	}
}

func (m *Metrics) BatchGenerated(created, skipped int) {
	outcome := "created"
	if created == 0 {
		outcome = "noop"
	}
	m.batchRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BlobFailed(op string) {
	m.blobFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) OverdueMarked(n int) {
	if n > 0 {
		m.overdueMarked.Add(float64(n))
	}
}

func (m *Metrics) JobRun(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}

// Middleware counts the requests by route template, so ids do not explode the label set.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
