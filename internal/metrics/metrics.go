// Package metrics provides Prometheus instrumentation for the savings engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DepositsTotal counts pool deposits, partitioned by pool.
	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savings_deposits_total",
		Help: "Total number of pool deposits",
	}, []string{"pool_id"})

	// WithdrawalsTotal counts pool withdrawals, partitioned by kind
	// (normal, emergency).
	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savings_withdrawals_total",
		Help: "Total number of pool withdrawals",
	}, []string{"kind"})

	// YieldDistributionsTotal counts completed yield distributions.
	YieldDistributionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "savings_yield_distributions_total",
		Help: "Total number of yield distributions",
	})

	// ContributionsTotal counts challenge contributions.
	ContributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savings_contributions_total",
		Help: "Total number of challenge contributions",
	}, []string{"challenge_id"})

	// MilestonesReached counts milestones newly reached, partitioned by
	// scope (user, group).
	MilestonesReached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savings_milestones_reached_total",
		Help: "Milestones newly marked as reached",
	}, []string{"scope"})

	// RewardsMinted counts reward token mints by reward type.
	RewardsMinted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savings_rewards_minted_total",
		Help: "Total reward mint operations",
	}, []string{"reward_type"})

	// TotalValueLocked tracks the engine-wide TVL in stroop-scale units.
	TotalValueLocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "savings_total_value_locked",
		Help: "Total value locked across all pools",
	})

	// ActiveChallenges tracks the number of active, unfinalized challenges.
	ActiveChallenges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "savings_active_challenges",
		Help: "Number of active savings challenges",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "savings_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savings_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "savings_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; identifiers are numeric and the
		// route surface is small.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
