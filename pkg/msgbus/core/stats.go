package core

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// routerStats aggregates forwarded/dropped counters and a sliding-window
// average message age (spec §4.2 "Statistics and flow info"). The counters
// are atomic so that Router.Stats can read them without taking the
// router's lock.
type routerStats struct {
	forwarded uint64
	dropped   uint64

	ageSamples []time.Duration
	ageHead    int

	forwardedMetric prometheus.Counter
	droppedMetric   prometheus.Counter
	avgAgeMetric    prometheus.Gauge
}

// ageWindowSize bounds the sliding window used for the average age reported
// in flow-info broadcasts.
const ageWindowSize = 64

// newRouterStats builds a stats tracker and its prometheus collectors,
// registered under routerName so multiple routers in one process (e.g. a
// bridge chain) don't collide on metric names.
func newRouterStats(reg prometheus.Registerer, routerName string) *routerStats {
	s := &routerStats{
		ageSamples: make([]time.Duration, 0, ageWindowSize),
		forwardedMetric: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "msgbus_router_forwarded_total",
			Help:        "Messages forwarded by this router.",
			ConstLabels: prometheus.Labels{"router": routerName},
		}),
		droppedMetric: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "msgbus_router_dropped_total",
			Help:        "Messages dropped by this router.",
			ConstLabels: prometheus.Labels{"router": routerName},
		}),
		avgAgeMetric: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "msgbus_router_avg_message_age_ms",
			Help:        "Sliding-window average message age observed by this router, in milliseconds.",
			ConstLabels: prometheus.Labels{"router": routerName},
		}),
	}
	if reg != nil {
		reg.MustRegister(s.forwardedMetric, s.droppedMetric, s.avgAgeMetric)
	}
	return s
}

func (s *routerStats) recordForwarded() {
	atomic.AddUint64(&s.forwarded, 1)
	s.forwardedMetric.Inc()
}

func (s *routerStats) recordDropped() {
	atomic.AddUint64(&s.dropped, 1)
	s.droppedMetric.Inc()
}

// recordAge folds one observed message age into the sliding window. Callers
// serialize this through the router's own update tick, so no lock is needed
// beyond the atomics already covering the plain counters.
func (s *routerStats) recordAge(d time.Duration) {
	if len(s.ageSamples) < ageWindowSize {
		s.ageSamples = append(s.ageSamples, d)
	} else {
		s.ageSamples[s.ageHead] = d
		s.ageHead = (s.ageHead + 1) % ageWindowSize
	}
	s.avgAgeMetric.Set(float64(s.averageAgeMs()))
}

// averageAgeMs returns the current sliding-window average, in milliseconds,
// carried on flow-info broadcasts (spec §4.2, §9).
func (s *routerStats) averageAgeMs() uint64 {
	if len(s.ageSamples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.ageSamples {
		total += d
	}
	return uint64(total.Milliseconds()) / uint64(len(s.ageSamples))
}

func (s *routerStats) snapshot() (forwarded, dropped uint64) {
	return atomic.LoadUint64(&s.forwarded), atomic.LoadUint64(&s.dropped)
}
