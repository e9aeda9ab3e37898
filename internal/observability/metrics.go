// Package observability exposes prometheus metrics for the service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. A nil
// Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Screening metrics
	Screenings *prometheus.CounterVec

	// Chat metrics
	ChatReplies      *prometheus.CounterVec
	ChatFallbacks    *prometheus.CounterVec
	ProviderDuration prometheus.Histogram
	CrisisDetections prometheus.Counter

	// Store metrics
	StoreDegradations *prometheus.CounterVec
}

// NewCollector creates a collector on its own registry with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Screenings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "screenings_total",
				Help:      "PHQ-9 submissions by severity and risk level",
			},
			[]string{"severity", "risk"},
		),
		ChatReplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_replies_total",
				Help:      "Chat replies by outcome (reply, empty, fallback)",
			},
			[]string{"outcome"},
		),
		ChatFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_fallbacks_total",
				Help:      "Fallback replies by failure category",
			},
			[]string{"category"},
		),
		ProviderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "LLM provider call duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
		),
		CrisisDetections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "crisis_detections_total",
				Help:      "Chat requests containing crisis language",
			},
		),
		StoreDegradations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_degraded_total",
				Help:      "Operations served degraded because a store was unreachable",
			},
			[]string{"store", "operation"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Screenings,
		c.ChatReplies,
		c.ChatFallbacks,
		c.ProviderDuration,
		c.CrisisDetections,
		c.StoreDegradations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the exposition format for this collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordScreening counts a stored submission.
func (c *Collector) RecordScreening(severity, risk string) {
	if c == nil {
		return
	}
	c.Screenings.WithLabelValues(severity, risk).Inc()
}

// RecordChatReply counts a reply outcome.
func (c *Collector) RecordChatReply(outcome string) {
	if c == nil {
		return
	}
	c.ChatReplies.WithLabelValues(outcome).Inc()
}

// RecordFallback counts a fallback reply by failure category.
func (c *Collector) RecordFallback(category string) {
	if c == nil {
		return
	}
	c.ChatFallbacks.WithLabelValues(category).Inc()
}

// ObserveProvider records the latency of one provider call.
func (c *Collector) ObserveProvider(d time.Duration) {
	if c == nil {
		return
	}
	c.ProviderDuration.Observe(d.Seconds())
}

// RecordCrisis counts a request with crisis language.
func (c *Collector) RecordCrisis() {
	if c == nil {
		return
	}
	c.CrisisDetections.Inc()
}

// RecordDegraded counts an operation served without its backing store.
func (c *Collector) RecordDegraded(store, operation string) {
	if c == nil {
		return
	}
	c.StoreDegradations.WithLabelValues(store, operation).Inc()
}

// GinMiddleware records request counts and latency by route template.
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		if c == nil {
			return
		}
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
