// Package telemetry exposes Prometheus metrics for HTTP traffic, ledger
// activity and report generation.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medledger"

// Metrics owns a private registry. All recording methods are safe on a nil
// receiver so metrics can be switched off by passing nil.
type Metrics struct {
	registry *prometheus.Registry

	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	invoicesCreated  prometheus.Counter
	paymentsRecorded prometheus.Counter
	paymentAmount    prometheus.Counter
	exonerations     prometheus.Counter
	exoneratedAmount prometheus.Counter
	transitions      *prometheus.CounterVec
	rejections       *prometheus.CounterVec

	reportDuration prometheus.Histogram
	reportCache    *prometheus.CounterVec
	reportExcluded prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		invoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "invoices_created_total",
			Help:      "Invoices created.",
		}),
		paymentsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "payments_recorded_total",
			Help:      "Payments accepted.",
		}),
		paymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "payment_amount_total",
			Help:      "Sum of accepted payment amounts.",
		}),
		exonerations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "exonerations_total",
			Help:      "Exonerations applied.",
		}),
		exoneratedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "exonerated_amount_total",
			Help:      "Sum of exonerated amounts.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "status_transitions_total",
			Help:      "Invoice status changes by from and to status.",
		}, []string{"from", "to"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Rejected ledger operations by operation and error code.",
		}, []string{"operation", "code"}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "generation_seconds",
			Help:      "Time spent building a financial report on cache miss.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		reportCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "cache_requests_total",
			Help:      "Report cache lookups by result.",
		}, []string{"result"}),
		reportExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "excluded_records_total",
			Help:      "Malformed records left out of generated reports.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpDuration, m.httpInFlight,
		m.invoicesCreated, m.paymentsRecorded, m.paymentAmount,
		m.exonerations, m.exoneratedAmount, m.transitions, m.rejections,
		m.reportDuration, m.reportCache, m.reportExcluded,
	)
	return m
}

// Registry returns the registry so callers can add their own collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records request latency labelled by the route pattern, never
// the raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			m.httpInFlight.Inc()
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = 500
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			m.httpInFlight.Dec()
			return err
		}
	}
}

func (m *Metrics) InvoiceCreated() {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc()
}

func (m *Metrics) PaymentRecorded(amount float64) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc()
	m.paymentAmount.Add(amount)
}

func (m *Metrics) Exonerated(amount float64) {
	if m == nil {
		return
	}
	m.exonerations.Inc()
	m.exoneratedAmount.Add(amount)
}

func (m *Metrics) StatusChanged(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Rejected(operation, code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) ReportGenerated(d time.Duration, excluded int) {
	if m == nil {
		return
	}
	m.reportDuration.Observe(d.Seconds())
	if excluded > 0 {
		m.reportExcluded.Add(float64(excluded))
	}
}

func (m *Metrics) ReportCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reportCache.WithLabelValues(result).Inc()
}
