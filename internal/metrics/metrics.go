// Package metrics exposes the bot's Prometheus counters and the small admin
// HTTP surface that serves them.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_events_ingested_total",
		Help: "State change events accepted into the fan-out queue.",
	})
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_events_dropped_total",
		Help: "State change events shed because the fan-out queue was full.",
	})
	Renders = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_renders_total",
		Help: "Screens delivered to users, edits and resends combined.",
	})
	ResendFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_resend_fallbacks_total",
		Help: "Renders that fell back to a fresh message after a failed edit.",
	})
	Notifications = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_notifications_total",
		Help: "Subscription notification messages sent.",
	})
)

func init() {
	prometheus.MustRegister(EventsIngested, EventsDropped, Renders, ResendFallbacks, Notifications)
}

// Handler builds the admin router: liveness probe plus the metrics endpoint.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
