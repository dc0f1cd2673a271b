package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the Prometheus instruments the detection loop exposes.
// Scraping is the operator's responsibility (no HTTP surface is part of
// this module, per spec.md §1); the registry is returned so an external
// runner can mount it on its own mux.
type Metrics struct {
	Registry *prometheus.Registry

	CyclesTotal        *prometheus.CounterVec
	DeploymentsTotal   *prometheus.CounterVec
	RecommendationsTotal *prometheus.CounterVec
	AutoAppliedTotal   prometheus.Counter
	RuleHealthScore    *prometheus.GaugeVec
}

// NewMetrics constructs and registers all instruments on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "detection_cycles_total",
			Help: "Total detection cycles run, labeled by outcome status.",
		}, []string{"status"}),
		DeploymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rule_deployments_total",
			Help: "Total per-target deployment attempts, labeled by engine and result.",
		}, []string{"engine", "result"}),
		RecommendationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tuning_recommendations_total",
			Help: "Total tuning recommendations generated, labeled by strategy and risk.",
		}, []string{"strategy", "risk"}),
		AutoAppliedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tuning_auto_applied_total",
			Help: "Total tuning recommendations auto-applied without approval.",
		}),
		RuleHealthScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rule_health_score",
			Help: "Most recently computed overall health score per rule.",
		}, []string{"rule_id"}),
	}
}
