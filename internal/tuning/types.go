// Package tuning implements the Tuning Optimizer and Tuning Engine
// (spec.md §4.5-§4.6): diagnosis of underperforming rules into concrete
// recommendations, risk-gated auto-apply, and the pending/history
// bookkeeping a human reviewer works against. Grounded on
// _examples/original_source/detection/tuning_engine.py
// (SigmaRuleTuningOptimizer, ContinuousTuningEngine).
package tuning

import (
	"time"
)

// Strategy names the diagnostic category a recommendation addresses.
type Strategy string

const (
	StrategyNoiseReduction     Strategy = "noise_reduction"
	StrategyThresholdAdjust    Strategy = "threshold_adjustment"
	StrategyFieldRefinement    Strategy = "field_refinement"
	StrategyTimeframeOptimize  Strategy = "timeframe_optimization"
	StrategyConditionSimplify  Strategy = "condition_simplification"
	StrategyCorrelationEnrich  Strategy = "correlation_enhancement"
)

// Action is the concrete mutation a recommendation proposes.
type Action string

const (
	ActionModifyRule     Action = "modify_rule"
	ActionDisableRule    Action = "disable_rule"
	ActionCreateVariant  Action = "create_variant"
	ActionAddWhitelist   Action = "add_whitelist"
	ActionAdjustSeverity Action = "adjust_severity"
)

// Risk is the reviewer-facing blast-radius classification of a
// recommendation; it gates auto-apply eligibility.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Recommendation is a single proposed tuning action for a rule.
type Recommendation struct {
	ID               string
	RuleID           string
	Strategy         Strategy
	Action           Action
	Confidence       float64
	Description      string
	Rationale        string
	ProposedChanges  map[string]interface{}
	EstimatedImpact  map[string]float64
	Risk             Risk
	RequiresApproval bool
}

// Result is the outcome of applying a Recommendation.
type Result struct {
	RuleID           string
	RecommendationID string
	ActionTaken      Action
	Success          bool
	NewRuleID        string
	AppliedChanges   map[string]interface{}
	ErrorMessage     string
	Timestamp        time.Time
}

// recommendationID builds tuning_engine.py's deterministic
// "<rule_id>_<strategy>" recommendation ID. Approve looks a pending
// recommendation up by its ID field; add_whitelist recommendations carry
// "<rule_id>_whitelist" there instead. Apply reports
// "<rule_id>_<strategy>" as Result.RecommendationID for every action.
func recommendationID(ruleID string, strategy Strategy) string {
	return ruleID + "_" + string(strategy)
}

// FeedbackItem is the minimal view of a feedback record the optimizer
// needs to mine false-positive/true-positive patterns, decoupled from
// the feedback package's richer Item so tuning has no import-time
// dependency on it.
type FeedbackItem struct {
	Kind    string
	Details map[string]interface{}
}

// Metrics is the subset of a rule's derived performance the optimizer
// diagnoses against.
type Metrics struct {
	PerformanceScore  float64
	FalsePositiveRate float64
	AlertFrequency    float64
}
