package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FinSignal/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scores       *prometheus.CounterVec
	strength     *prometheus.HistogramVec
	health       *prometheus.CounterVec
	insufficient *prometheus.CounterVec
	regime       *prometheus.GaugeVec
	regimeShift  prometheus.Gauge
	failures     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	checkpoint   *prometheus.GaugeVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder on reg; tests pass a fresh
// prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		scores: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_scores_total",
				Help: "Composite scores computed by profile and classification",
			},
			[]string{"profile", "classification"},
		),
		strength: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsignal_score_strength",
				Help:    "Strength of computed classifications",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"profile"},
		),
		health: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_health_scores_total",
				Help: "Health scores computed by profile and grade",
			},
			[]string{"profile", "grade"},
		),
		insufficient: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_insufficient_total",
				Help: "Results downgraded to insufficient data",
			},
			[]string{"profile", "reason"},
		),
		regime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsignal_regime_level",
				Help: "1 for the most recently detected regime level, 0 otherwise",
			},
			[]string{"level"},
		),
		regimeShift: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "finsignal_regime_shift",
				Help: "1 when the latest regime evaluation flagged a shift",
			},
		),
		failures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_entity_failures_total",
				Help: "Per-entity failures by stage",
			},
			[]string{"stage"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsignal_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		checkpoint: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsignal_checkpoint_completed",
				Help: "Items completed at the last saved checkpoint",
			},
			[]string{"job"},
		),
	}
}

func (r *Recorder) RecordScore(profileID string, class models.Classification, strength float64) {
	r.scores.WithLabelValues(profileID, string(class)).Inc()
	r.strength.WithLabelValues(profileID).Observe(strength)
}

func (r *Recorder) RecordHealth(profileID string, grade models.Grade) {
	r.health.WithLabelValues(profileID, string(grade)).Inc()
}

func (r *Recorder) RecordInsufficient(profileID, reason string) {
	r.insufficient.WithLabelValues(profileID, reason).Inc()
}

// RecordRegime marks level as current.
func (r *Recorder) RecordRegime(level models.RegimeLevel, shift bool) {
	for _, l := range []models.RegimeLevel{models.RegimeLow, models.RegimeNormal, models.RegimeHigh, models.RegimeCrisis} {
		v := 0.0
		if l == level {
			v = 1
		}
		r.regime.WithLabelValues(string(l)).Set(v)
	}
	if shift {
		r.regimeShift.Set(1)
	} else {
		r.regimeShift.Set(0)
	}
}

func (r *Recorder) RecordEntityFailure(stage string) {
	r.failures.WithLabelValues(stage).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordCheckpoint(jobID string, completed int) {
	r.checkpoint.WithLabelValues(jobID).Set(float64(completed))
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordScore(string, models.Classification, float64) {}
func (Nop) RecordHealth(string, models.Grade) {}
func (Nop) RecordInsufficient(string, string) {}
func (Nop) RecordRegime(models.RegimeLevel, bool) {}
func (Nop) RecordEntityFailure(string) {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordCheckpoint(string, int) {}
