package dispatcher

import (
	"time"

	"github.com/dualive/capture/pkg/media"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type promMetrics struct {
	units      *prometheus.CounterVec
	evicted    *prometheus.CounterVec
	queueLen   *prometheus.GaugeVec
	degradedG  *prometheus.GaugeVec
	deliveries *prometheus.HistogramVec
}

var metrics = promMetrics{
	units: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualive",
		Subsystem: "dispatcher",
		Name:      "units_total",
		Help:      "Submitted capture units by kind and outcome.",
	}, []string{"kind", "outcome"}),
	evicted: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dualive",
		Subsystem: "dispatcher",
		Name:      "evicted_total",
		Help:      "Queued units evicted in favor of fresher ones.",
	}, []string{"kind"}),
	queueLen: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dualive",
		Subsystem: "dispatcher",
		Name:      "queue_length",
		Help:      "Units waiting for the consumer.",
	}, []string{"kind"}),
	degradedG: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dualive",
		Subsystem: "dispatcher",
		Name:      "degraded",
		Help:      "1 when the lane evicts above the threshold.",
	}, []string{"kind"}),
	deliveries: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dualive",
		Subsystem: "dispatcher",
		Name:      "consumer_seconds",
		Help:      "Time spent in the consumer callback.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .02, .04, .1},
	}, []string{"kind"}),
}

func (m promMetrics) outcome(k media.Kind, o Outcome, evicted bool, qlen int) {
	m.units.WithLabelValues(k.String(), o.String()).Inc()
	if evicted {
		m.evicted.WithLabelValues(k.String()).Inc()
	}
	m.queueLen.WithLabelValues(k.String()).Set(float64(qlen))
}

func (m promMetrics) queue(k media.Kind, qlen int) {
	m.queueLen.WithLabelValues(k.String()).Set(float64(qlen))
}

func (m promMetrics) degraded(k media.Kind, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	m.degradedG.WithLabelValues(k.String()).Set(v)
}

func (m promMetrics) latency(k media.Kind, d time.Duration) {
	m.deliveries.WithLabelValues(k.String()).Observe(d.Seconds())
}
