package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Admission outcomes used as the "outcome" label.
const (
	OutcomeSkipped     = "skipped"
	OutcomeAllowed     = "allowed"
	OutcomeThrottled   = "throttled"
	OutcomeAutoBlocked = "auto_blocked"
	OutcomeStoreError  = "store_error"
)

var (
	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_ratelimit_decisions_total",
		Help: "Total number of admission decisions by outcome",
	}, []string{"outcome"})
	gateRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_gate_rejections_total",
		Help: "Total number of requests rejected by an existing block",
	})
	autoBlocksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_auto_blocks_total",
		Help: "Total number of block entries created by the auto-blocker",
	})
	violationsLoggedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_violations_logged_total",
		Help: "Total number of persisted violation records by severity",
	}, []string{"severity"})
	storeErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_ratelimit_store_errors_total",
		Help: "Total number of counter store or block lookup failures",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(decisionsTotal, gateRejectionsTotal, autoBlocksTotal, violationsLoggedTotal, storeErrorsTotal)
}

// IncDecision increments the admission decision counter for outcome.
func IncDecision(outcome string) { decisionsTotal.WithLabelValues(outcome).Inc() }

// IncGateRejection increments the gate rejection counter.
func IncGateRejection() { gateRejectionsTotal.Inc() }

// IncAutoBlock increments the auto-block counter.
func IncAutoBlock() { autoBlocksTotal.Inc() }

// IncViolationLogged increments the persisted violation counter.
func IncViolationLogged(severity string) { violationsLoggedTotal.WithLabelValues(severity).Inc() }

// IncStoreError increments the infrastructure fault counter.
func IncStoreError() { storeErrorsTotal.Inc() }
