package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Recorder backed by Prometheus.
// Collectors are created and registered lazily on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	cycles            *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	pairsFormed       prometheus.Counter
	unpaired          prometheus.Gauge
	rematches         *prometheus.CounterVec
	feedbackResponses *prometheus.CounterVec
	feedbackExpired   prometheus.Counter
	feedbackMismatch  prometheus.Counter
	attritions        prometheus.Counter
	notifierFailures  *prometheus.CounterVec
}

var _ Recorder = (*PrometheusCollector)(nil)

// NewPrometheus creates a Prometheus-backed recorder.
//
// reg defaults to prometheus.DefaultRegisterer and namespace to "pairing".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "pairing"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total cycle runs by trigger and result.",
		}, []string{"trigger", "result"})

		p.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Duration of a cycle run including feedback prompts and announcement.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		})

		p.pairsFormed = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cycle",
			Name:      "pairs_formed_total",
			Help:      "Total pairs committed by scheduled or manual cycles.",
		})

		p.unpaired = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "cycle",
			Name:      "unpaired_members",
			Help:      "Members left unpaired by the most recent cycle.",
		})

		p.rematches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "membership",
			Name:      "rematches_total",
			Help:      "On-demand rematches by result (paired, pooled).",
		}, []string{"result"})

		p.feedbackResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "feedback",
			Name:      "responses_total",
			Help:      "Feedback responses by outcome.",
		}, []string{"outcome"})

		p.feedbackExpired = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "feedback",
			Name:      "expired_total",
			Help:      "Feedback prompts that closed without a response.",
		})

		p.feedbackMismatch = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "feedback",
			Name:      "mismatches_total",
			Help:      "Pairs whose two sides reported conflicting outcomes.",
		})

		p.attritions = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "membership",
			Name:      "attritions_total",
			Help:      "Members removed automatically after repeated missed meetings.",
		})

		p.notifierFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "notifier",
			Name:      "failures_total",
			Help:      "Failed message deliveries by kind (announce, dm, prompt).",
		}, []string{"kind"})

		p.reg.MustRegister(p.cycles)
		p.reg.MustRegister(p.cycleDuration)
		p.reg.MustRegister(p.pairsFormed)
		p.reg.MustRegister(p.unpaired)
		p.reg.MustRegister(p.rematches)
		p.reg.MustRegister(p.feedbackResponses)
		p.reg.MustRegister(p.feedbackExpired)
		p.reg.MustRegister(p.feedbackMismatch)
		p.reg.MustRegister(p.attritions)
		p.reg.MustRegister(p.notifierFailures)
	})
}

// RecordCycle counts the run and observes its duration.
func (p *PrometheusCollector) RecordCycle(trigger, result string, seconds float64) {
	p.ensureRegistered()
	p.cycles.WithLabelValues(trigger, result).Inc()
	p.cycleDuration.Observe(seconds)
}

func (p *PrometheusCollector) AddPairsFormed(n int) {
	p.ensureRegistered()
	p.pairsFormed.Add(float64(n))
}

func (p *PrometheusCollector) SetUnpaired(n int) {
	p.ensureRegistered()
	p.unpaired.Set(float64(n))
}

func (p *PrometheusCollector) IncRematch(result string) {
	p.ensureRegistered()
	p.rematches.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) IncFeedbackResponse(outcome string) {
	p.ensureRegistered()
	p.feedbackResponses.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) AddFeedbackExpired(n int) {
	p.ensureRegistered()
	p.feedbackExpired.Add(float64(n))
}

func (p *PrometheusCollector) IncFeedbackMismatch() {
	p.ensureRegistered()
	p.feedbackMismatch.Inc()
}

func (p *PrometheusCollector) IncAttrition() {
	p.ensureRegistered()
	p.attritions.Inc()
}

func (p *PrometheusCollector) IncNotifierFailure(kind string) {
	p.ensureRegistered()
	p.notifierFailures.WithLabelValues(kind).Inc()
}
