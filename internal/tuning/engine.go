package tuning

import (
	"fmt"
	"sync"

	"github.com/cybersentinel/detection-loop/internal/config"
	"github.com/cybersentinel/detection-loop/internal/observability"
	"github.com/cybersentinel/detection-loop/internal/rule"
)

// RuleSource resolves a rule ID to its current definition, feedback
// history, and derived metrics — the data ContinuousTuningEngine's Python
// counterpart fetched from a rule repository, feedback loop, and
// performance monitor respectively.
type RuleSource interface {
	Rule(ruleID string) (*rule.Rule, bool)
	Feedback(ruleID string) []FeedbackItem
	Metrics(ruleID string) (Metrics, bool)
}

// Engine is the Tuning Engine (spec.md §4.6): it diagnoses underperforming
// rules into recommendations, auto-applies the low-risk ones, and holds a
// pending queue plus bounded history for everything else.
type Engine struct {
	mu      sync.Mutex
	source  RuleSource
	cfg     config.TuningConfig
	logger  *observability.Logger
	pending map[string][]Recommendation
	history []Result
}

// New constructs an Engine.
func New(source RuleSource, cfg config.TuningConfig, logger *observability.Logger) *Engine {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Engine{
		source:  source,
		cfg:     cfg,
		logger:  logger.WithComponent("tuning"),
		pending: make(map[string][]Recommendation),
	}
}

// TuneRules analyzes every rule in performanceScores whose score is below
// cfg.TuningScoreThreshold (optionally restricted to deployedRuleIDs,
// when non-empty), generates recommendations, and auto-applies the
// eligible ones. Returns the number of recommendations successfully
// auto-applied, across all rules.
func (e *Engine) TuneRules(performanceScores map[string]float64, deployedRuleIDs map[string]struct{}) int {
	if len(performanceScores) == 0 {
		return 0
	}

	var tuned int
	for ruleID, score := range performanceScores {
		if len(deployedRuleIDs) > 0 {
			if _, ok := deployedRuleIDs[ruleID]; !ok {
				continue
			}
		}
		if score >= e.cfg.TuningScoreThreshold {
			continue
		}

		recs := e.analyzeForTuning(ruleID)
		if len(recs) == 0 {
			continue
		}

		e.mu.Lock()
		e.pending[ruleID] = recs
		e.mu.Unlock()

		tuned += e.autoApply(ruleID, recs)
	}
	return tuned
}

func (e *Engine) analyzeForTuning(ruleID string) []Recommendation {
	r, ok := e.source.Rule(ruleID)
	if !ok {
		return nil
	}
	feedback := e.source.Feedback(ruleID)
	if len(feedback) < e.cfg.MinFeedbackSamples {
		e.logger.WithRuleID(ruleID).Debug("insufficient feedback for tuning")
		return nil
	}
	metrics, ok := e.source.Metrics(ruleID)
	if !ok {
		return nil
	}

	recs := Analyze(r, metrics, feedback)
	if max := e.cfg.MaxRecommendationsPerRule; max > 0 && len(recs) > max {
		recs = recs[:max]
	}
	return recs
}

func (e *Engine) shouldAutoApply(rec Recommendation) bool {
	switch rec.Risk {
	case RiskLow:
		return e.cfg.AutoApplyLowRisk && !rec.RequiresApproval
	default:
		return false
	}
}

func (e *Engine) autoApply(ruleID string, recs []Recommendation) int {
	var applied int
	for _, rec := range recs {
		if !e.shouldAutoApply(rec) {
			continue
		}
		result, ok := e.apply(ruleID, rec)
		if !ok || !result.Success {
			continue
		}
		applied++
		e.removePending(ruleID, rec.ID)
	}
	return applied
}

func (e *Engine) apply(ruleID string, rec Recommendation) (Result, bool) {
	r, ok := e.source.Rule(ruleID)
	if !ok {
		return Result{}, false
	}

	_, result := Apply(r, rec)

	e.mu.Lock()
	e.history = append(e.history, result)
	if len(e.history) > e.maxHistory() {
		e.history = e.history[len(e.history)-e.maxHistory():]
	}
	e.mu.Unlock()

	return result, true
}

func (e *Engine) maxHistory() int {
	if e.cfg.MaxHistoryEntries > 0 {
		return e.cfg.MaxHistoryEntries
	}
	return 100
}

func (e *Engine) removePending(ruleID, recID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// A fresh slice: filtering in place would overwrite the slice that
	// autoApply is still iterating over.
	remaining := make([]Recommendation, 0, len(e.pending[ruleID]))
	for _, r := range e.pending[ruleID] {
		if r.ID != recID {
			remaining = append(remaining, r)
		}
	}
	if len(remaining) == 0 {
		delete(e.pending, ruleID)
	} else {
		e.pending[ruleID] = remaining
	}
}

// PendingRecommendations returns every rule's currently outstanding
// recommendations.
func (e *Engine) PendingRecommendations() map[string][]Recommendation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]Recommendation, len(e.pending))
	for ruleID, recs := range e.pending {
		out[ruleID] = append([]Recommendation(nil), recs...)
	}
	return out
}

// History returns the most recent limit applied tuning results (or all
// of them, if limit <= 0).
func (e *Engine) History(limit int) []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit >= len(e.history) {
		out := make([]Result, len(e.history))
		copy(out, e.history)
		return out
	}
	return append([]Result(nil), e.history[len(e.history)-limit:]...)
}

// Approve applies a specific pending recommendation regardless of its
// risk tier, mirroring approve_recommendation's manual-override path for
// medium/high-risk recommendations that were held back from auto-apply.
func (e *Engine) Approve(ruleID, recommendationID string) error {
	e.mu.Lock()
	recs, ok := e.pending[ruleID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("tuning: no pending recommendations for rule %q", ruleID)
	}

	var target *Recommendation
	for i := range recs {
		if recs[i].ID == recommendationID {
			target = &recs[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("tuning: recommendation %q not found for rule %q", recommendationID, ruleID)
	}

	result, ok := e.apply(ruleID, *target)
	if !ok {
		return fmt.Errorf("tuning: rule %q no longer resolvable", ruleID)
	}
	if !result.Success {
		return fmt.Errorf("tuning: apply failed: %s", result.ErrorMessage)
	}

	e.removePending(ruleID, recommendationID)
	return nil
}

// Statistics summarizes the engine's current pending/applied state,
// mirroring get_tuning_statistics.
type Statistics struct {
	TotalPendingRecommendations int
	TotalAppliedTunings         int
	SuccessRate                 float64
	TuningByStrategy            map[Strategy]int
	RulesWithPendingRecs        int
}

// GetStatistics returns a snapshot of the engine's tuning activity.
func (e *Engine) GetStatistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{TuningByStrategy: make(map[Strategy]int)}
	for _, recs := range e.pending {
		stats.TotalPendingRecommendations += len(recs)
	}
	stats.RulesWithPendingRecs = len(e.pending)
	stats.TotalAppliedTunings = len(e.history)

	var successful int
	for _, result := range e.history {
		if result.Success {
			successful++
		}
	}
	if stats.TotalAppliedTunings > 0 {
		stats.SuccessRate = float64(successful) / float64(stats.TotalAppliedTunings)
	}

	return stats
}
