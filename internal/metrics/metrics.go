package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh results.
const (
	RefreshOK      = "ok"
	RefreshError   = "error"
	RefreshTimeout = "timeout"
	RefreshDropped = "dropped"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabguard",
			Name:      "refresh_total",
			Help:      "Tab data refreshes by result (ok, error, timeout, dropped).",
		}, []string{"result"},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tabguard",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one policy tick, from request to the end of the strategy pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	tickOverruns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tabguard",
			Name:      "tick_overruns_total",
			Help:      "Ticks that took longer than the check interval.",
		},
	)
	kills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabguard",
			Name:      "kills_total",
			Help:      "Termination attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"},
	)
	tabs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tabguard",
			Name:      "tabs",
			Help:      "Tabs tracked in the latest snapshot.",
		},
	)
	tabsRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tabguard",
			Name:      "tabs_rss_bytes",
			Help:      "Resident memory of all tracked tab processes.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{refreshes, tickDuration, tickOverruns, kills, tabs, tabsRSS}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// Already registered with this registry: keep the existing one.
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// NewServer returns a server exposing Handler on /metrics. The caller starts it.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncRefresh(result string) {
	if regOK.Load() {
		refreshes.WithLabelValues(result).Inc()
	}
}

func ObserveTick(d time.Duration) {
	if regOK.Load() {
		tickDuration.Observe(d.Seconds())
	}
}

func IncTickOverrun() {
	if regOK.Load() {
		tickOverruns.Inc()
	}
}

func IncKill(strategy, outcome string) {
	if regOK.Load() {
		kills.WithLabelValues(strategy, outcome).Inc()
	}
}

func SetTabs(n int, rss uint64) {
	if regOK.Load() {
		tabs.Set(float64(n))
		tabsRSS.Set(float64(rss))
	}
}
