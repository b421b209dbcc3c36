// Package metrics exposes Prometheus collectors for dispatch runs,
// connections and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Delivery attempts partitioned by outcome (SENT, FAILED)
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whazaaa_messages_total",
			Help: "Total number of campaign delivery attempts",
		},
		[]string{"status"},
	)

	campaignsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whazaaa_campaigns_total",
			Help: "Campaigns that reached a terminal status",
		},
		[]string{"status"},
	)

	campaignDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whazaaa_campaign_duration_seconds",
			Help:    "Wall time of dispatch runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whazaaa_active_connections",
			Help: "Users with a registered WhatsApp connection",
		},
	)

	reconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whazaaa_reconnects_total",
			Help: "Scheduled reconnect attempts after transient disconnects",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

func ObserveDelivery(status string) {
	messagesTotal.WithLabelValues(status).Inc()
}

func ObserveCampaign(status string, elapsed time.Duration) {
	campaignsTotal.WithLabelValues(status).Inc()
	campaignDuration.Observe(elapsed.Seconds())
}

func SetActiveConnections(n int) {
	activeConnections.Set(float64(n))
}

func ObserveReconnect() {
	reconnectsTotal.Inc()
}

// Middleware records request metrics labelled with the chi route pattern
// to keep cardinality low.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
