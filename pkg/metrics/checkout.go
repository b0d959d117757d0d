package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// CheckoutMetrics records checkout wizard and order submission activity.
type CheckoutMetrics struct {
	duration       *prometheus.HistogramVec
	outcomes       *prometheus.CounterVec
	stepRejections *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_submission_duration_seconds",
		Help:    "Duration of order submissions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_submissions_total",
		Help: "Order submissions, by outcome.",
	}, []string{"outcome"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_step_rejections_total",
		Help: "Forward transitions refused by step validation, by step.",
	}, []string{"step"})
	reg.MustRegister(duration, outcomes, rejections)
	return &CheckoutMetrics{
		duration:       duration,
		outcomes:       outcomes,
		stepRejections: rejections,
	}
}

// ObserveSubmission records how long a submission through the named mode took.
func (c *CheckoutMetrics) ObserveSubmission(mode string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(mode)).Observe(duration.Seconds())
}

// IncOutcome increments the submission counter for the outcome.
func (c *CheckoutMetrics) IncOutcome(outcome string) {
	if c == nil || c.outcomes == nil {
		return
	}
	c.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncStepRejection counts a refused advance out of the named step.
func (c *CheckoutMetrics) IncStepRejection(step string) {
	if c == nil || c.stepRejections == nil {
		return
	}
	c.stepRejections.WithLabelValues(normalizeLabel(step)).Inc()
}
