// Package metrics exposes engine activity in the Prometheus format.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwebster45206/closed-ai/internal/game"
)

const namespace = "closed_ai"

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	actionsTotal    *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	sideActions     *prometheus.CounterVec
}

var _ game.Metrics = (*Metrics)(nil)

// New registers the engine collectors, plus the Go and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		actionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "game_actions_total",
			Help:      "Main-queue actions by kind and result.",
		}, []string{"kind", "result"}),
		actionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "game_action_duration_seconds",
			Help:      "Time from admitting an action to the end of its broadcast.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		}, []string{"kind"}),
		sideActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "game_side_actions_total",
			Help:      "Side actions by kind and result (ok, error, skipped).",
		}, []string{"kind", "result"}),
	}
}

// ObserveGames exports the number of live games as reported by count.
func (m *Metrics) ObserveGames(count func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "games_live",
		Help:      "Games currently held in memory.",
	}, func() float64 { return float64(count()) })
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer is exposed for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ActionProcessed(kind game.Kind, elapsed time.Duration, err error) {
	m.actionsTotal.WithLabelValues(string(kind), actionResult(err)).Inc()
	m.actionDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) SideActionFinished(kind game.Kind, _ time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sideActions.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) SideActionSkipped(kind game.Kind) {
	m.sideActions.WithLabelValues(string(kind), "skipped").Inc()
}

func actionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, game.ErrActionQueueBlocked):
		return "blocked"
	default:
		return "error"
	}
}
