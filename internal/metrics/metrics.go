package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	compositorStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scopetray",
			Subsystem: "compositor",
			Name:      "starts_total",
			Help:      "Number of successful compositor starts.",
		},
	)
	compositorStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scopetray",
			Subsystem: "compositor",
			Name:      "stops_total",
			Help:      "Number of compositor exits, graceful or not.",
		},
	)
	compositorCrashes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scopetray",
			Subsystem: "compositor",
			Name:      "crashes_total",
			Help:      "Number of unexpected nonzero exits.",
		},
	)
	compositorRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scopetray",
			Subsystem: "compositor",
			Name:      "restarts_total",
			Help:      "Number of automatic restart attempts.",
		},
	)
	spawnFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scopetray",
			Subsystem: "compositor",
			Name:      "spawn_failures_total",
			Help:      "Number of failed spawn attempts.",
		},
	)
	compositorRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scopetray",
			Subsystem: "compositor",
			Name:      "running",
			Help:      "1 while the compositor is running.",
		},
	)
	menuRebuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scopetray",
			Subsystem: "menu",
			Name:      "rebuilds_total",
			Help:      "Number of menu rebuilds that changed the layout.",
		},
	)
)

// Register registers all collectors with r. Duplicate registration is treated
// as success so embedding callers may register more than once.
func Register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		compositorStarts, compositorStops, compositorCrashes,
		compositorRestarts, spawnFailures, compositorRunning, menuRebuilds,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart()        { compositorStarts.Inc(); compositorRunning.Set(1) }
func IncStop()         { compositorStops.Inc(); compositorRunning.Set(0) }
func IncCrash()        { compositorCrashes.Inc() }
func IncRestart()      { compositorRestarts.Inc() }
func IncSpawnFailure() { spawnFailures.Inc() }
func IncMenuRebuild()  { menuRebuilds.Inc() }
