package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planordo/planning-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the arbitration
// core and its HTTP surface.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	resolutionTotal    *prometheus.CounterVec
	resolutionDuration prometheus.Histogram
	commandsPublished  *prometheus.CounterVec
	commandsDropped    prometheus.Counter
	liveSessions       prometheus.Gauge
}

// NewMetricsService registers the core collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	resolutionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slot_resolutions_total",
		Help: "Arbitrated slot resolutions by resulting status",
	}, []string{"status"})

	resolutionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "slot_resolution_duration_seconds",
		Help:    "Duration of single slot resolutions",
		Buckets: prometheus.DefBuckets,
	})

	commandsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_commands_published_total",
		Help: "Commands published to the relay by action",
	}, []string{"action"})

	commandsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_commands_dropped_total",
		Help: "Already-seen commands dropped during polling",
	})

	liveSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "editor_sessions_live",
		Help: "Currently live editor sessions",
	})

	registry.MustRegister(requestDuration, requestTotal, resolutionTotal, resolutionDuration, commandsPublished, commandsDropped, liveSessions)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		resolutionTotal:    resolutionTotal,
		resolutionDuration: resolutionDuration,
		commandsPublished:  commandsPublished,
		commandsDropped:    commandsDropped,
		liveSessions:       liveSessions,
	}
}

// Handler serves the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveResolution records one arbitration outcome.
func (m *MetricsService) ObserveResolution(status models.SlotStatus, duration time.Duration) {
	m.resolutionTotal.WithLabelValues(string(status)).Inc()
	m.resolutionDuration.Observe(duration.Seconds())
}

// CommandPublished counts one published relay command.
func (m *MetricsService) CommandPublished(action models.CommandAction) {
	m.commandsPublished.WithLabelValues(string(action)).Inc()
}

// CommandDropped counts one deduplicated relay command.
func (m *MetricsService) CommandDropped() {
	m.commandsDropped.Inc()
}

// SetLiveSessions tracks the live session count.
func (m *MetricsService) SetLiveSessions(count int) {
	m.liveSessions.Set(float64(count))
}

// GinMiddleware instruments HTTP requests.
func (m *MetricsService) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
