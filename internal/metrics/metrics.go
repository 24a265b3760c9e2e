// Package metrics records advisory, never-reject observability signals:
// DivergenceExceeded and InsufficientBalance, plus the current
// consolidation mode and intent state-transition counts. It never
// rejects or surfaces these as errors, it only counts them. No HTTP
// handler is registered here; exposing /metrics is left to the caller.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Registry is process-local; nothing in this repo exposes it over
	// HTTP, callers are free to wire promhttp.HandlerFor(Registry, ...)
	// themselves if they add that surface.
	Registry = prometheus.NewRegistry()

	DivergenceExceeded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_divergence_exceeded_total",
		Help: "Quotes whose deviation from the consolidated price exceeded TokenCfg.DeltaBps.",
	}, []string{"token_id", "source"})

	InsufficientBalance = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_insufficient_balance_total",
		Help: "Trigger evaluations suppressed because the computed amount exceeded the source balance.",
	}, []string{"rule_id"})

	ConsolidationMode = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "treasury_consolidation_mode",
		Help: "Last consolidation mode per token: 0=Normal, 1=Degraded, 2=Frozen.",
	}, []string{"token_id"})

	IntentTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_intent_transitions_total",
		Help: "TransferIntent status transitions, by resulting status.",
	}, []string{"rule_id", "status"})
)

func init() {
	Registry.MustRegister(DivergenceExceeded, InsufficientBalance, ConsolidationMode, IntentTransitions)
}

// ModeValue maps a domain.Mode-shaped string to the gauge encoding
// documented on ConsolidationMode. Kept independent of the domain
// package to avoid an import cycle; callers pass the string form.
func ModeValue(mode string) float64 {
	switch mode {
	case "normal":
		return 0
	case "degraded":
		return 1
	case "frozen":
		return 2
	default:
		return -1
	}
}
