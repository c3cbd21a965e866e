package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics stores Prometheus collectors used by the front door and the core.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	targetOutcomesTotal      *prometheus.CounterVec
	aggregateStatusTotal     *prometheus.CounterVec
	vendorCallDuration       *prometheus.HistogramVec
	sideChannelFailuresTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dncl_gateway",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dncl_gateway",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		targetOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dncl_gateway",
				Name:      "target_outcomes_total",
				Help:      "Classified outcomes of vendor list calls by target, operation, and outcome.",
			},
			[]string{"target", "operation", "outcome"},
		),
		aggregateStatusTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dncl_gateway",
				Name:      "aggregate_status_total",
				Help:      "Reconciled aggregate statuses by operation.",
			},
			[]string{"operation", "status"},
		),
		vendorCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dncl_gateway",
				Name:      "vendor_call_duration_seconds",
				Help:      "Vendor round-trip duration in seconds grouped by target and step.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
			},
			[]string{"target", "step"},
		),
		sideChannelFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dncl_gateway",
				Name:      "side_channel_failures_total",
				Help:      "Failures of audit, diagnostics, and notification steps.",
			},
			[]string{"step"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.targetOutcomesTotal,
		m.aggregateStatusTotal,
		m.vendorCallDuration,
		m.sideChannelFailuresTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncTargetOutcome(target string, operation string, outcome string) {
	if m == nil {
		return
	}
	m.targetOutcomesTotal.WithLabelValues(normalizeLabel(target), normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncAggregateStatus(operation string, status string) {
	if m == nil {
		return
	}
	m.aggregateStatusTotal.WithLabelValues(normalizeLabel(operation), normalizeLabel(status)).Inc()
}

func (m *Metrics) ObserveVendorCall(target string, step string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.vendorCallDuration.WithLabelValues(normalizeLabel(target), normalizeLabel(step)).Observe(seconds)
}

func (m *Metrics) IncSideChannelFailure(step string) {
	if m == nil {
		return
	}
	m.sideChannelFailuresTotal.WithLabelValues(normalizeLabel(step)).Inc()
}

// TargetOutcomeCount reads back the outcome counter.
func (m *Metrics) TargetOutcomeCount(target string, operation string, outcome string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.targetOutcomesTotal.WithLabelValues(normalizeLabel(target), normalizeLabel(operation), normalizeLabel(outcome)))
}

func counterValue(counter prometheus.Counter) float64 {
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
