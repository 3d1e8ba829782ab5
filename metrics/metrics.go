// Package metrics exports fit activity as Prometheus metrics.
//
// A Recorder implements fit.Observer, so passing it to fit.WithObserver
// instruments every strategy a Selector builds:
//
//	rec := metrics.NewRecorder(prometheus.DefaultRegisterer)
//	sel, _ := fit.NewSelector(fit.WithObserver(rec))
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arloliu/yieldfit/fit"
)

const namespace = "yieldfit"

// Recorder holds the fit metrics. All methods are safe for concurrent use.
type Recorder struct {
	// AttemptsTotal counts minimizer executions.
	// Labels: strategy, status (minimizer status code)
	AttemptsTotal *prometheus.CounterVec

	// BoundAdjustmentsTotal counts parameter bounds moved before a retry.
	// Labels: strategy, side (lower, upper)
	BoundAdjustmentsTotal *prometheus.CounterVec

	// FitsTotal counts finished strategy executions.
	// Labels: strategy, terminal (Done, DoneWithWarning)
	FitsTotal *prometheus.CounterVec

	// FitDurationSeconds measures strategy execution time.
	// Labels: strategy
	FitDurationSeconds *prometheus.HistogramVec

	// FitAttempts observes the number of attempts per finished fit.
	// Labels: strategy
	FitAttempts *prometheus.HistogramVec

	// OutcomesTotal counts orchestrated fits by outcome.
	// Labels: method, outcome (ok, failed, error)
	OutcomesTotal *prometheus.CounterVec
}

var _ fit.Observer = (*Recorder)(nil)

// NewRecorder creates the fit metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "minimizer",
			Name:      "attempts_total",
			Help:      "Minimizer executions by strategy and status",
		}, []string{"strategy", "status"}),
		BoundAdjustmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fit",
			Name:      "bound_adjustments_total",
			Help:      "Parameter bounds moved before a retry",
		}, []string{"strategy", "side"}),
		FitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fit",
			Name:      "finished_total",
			Help:      "Finished strategy executions by terminal state",
		}, []string{"strategy", "terminal"}),
		FitDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fit",
			Name:      "duration_seconds",
			Help:      "Strategy execution time in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"strategy"}),
		FitAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fit",
			Name:      "attempts",
			Help:      "Minimizer attempts per finished fit",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}, []string{"strategy"}),
		OutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "outcomes_total",
			Help:      "Orchestrated fits by method and outcome",
		}, []string{"method", "outcome"}),
	}
}

func (r *Recorder) AttemptFinished(strategy string, _ int, res *fit.Result) {
	status := "none"
	if res != nil {
		status = strconv.Itoa(res.Status())
	}
	r.AttemptsTotal.WithLabelValues(strategy, status).Inc()
}

func (r *Recorder) BoundsAdjusted(strategy string, adjustments []fit.Adjustment) {
	for _, a := range adjustments {
		r.BoundAdjustmentsTotal.WithLabelValues(strategy, a.Side.String()).Inc()
	}
}

func (r *Recorder) FitFinished(strategy string, res *fit.Result, elapsed time.Duration) {
	r.FitDurationSeconds.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if res == nil {
		return
	}
	r.FitsTotal.WithLabelValues(strategy, res.Terminal().String()).Inc()
	r.FitAttempts.WithLabelValues(strategy).Observe(float64(res.Attempts()))
}

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeError  = "error"
)

// RecordOutcome counts one orchestrated fit.
func (r *Recorder) RecordOutcome(method, outcome string) {
	r.OutcomesTotal.WithLabelValues(method, outcome).Inc()
}
