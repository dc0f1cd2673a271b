package tuning

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cybersentinel/detection-loop/internal/rule"
)

var countThresholdPattern = regexp.MustCompile(`count\(\)\s*>\s*(\d+)`)

// extractCountThreshold pulls the integer threshold out of a
// "... count() > N" condition, mirroring tuning_engine.py's regex
// extraction in _recommend_threshold_adjustment.
func extractCountThreshold(condition string) (int, bool) {
	m := countThresholdPattern.FindStringSubmatch(condition)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Diagnosis thresholds, fixed per tuning_engine.py's SigmaRuleTuningOptimizer.
const (
	falsePositiveRateThreshold = 0.30
	alertFrequencyThreshold    = 10.0
	performanceScoreThreshold  = 0.5
	minFalsePositiveFeedback   = 5
)

// Analyze diagnoses a rule's performance and feedback into tuning
// recommendations, mirroring SigmaRuleTuningOptimizer.analyze_rule's
// three fixed-threshold checks plus its false-positive pattern mining.
func Analyze(r *rule.Rule, metrics Metrics, feedback []FeedbackItem) []Recommendation {
	var recs []Recommendation

	if metrics.FalsePositiveRate > falsePositiveRateThreshold {
		recs = append(recs, recommendNoiseReduction(r, metrics.FalsePositiveRate, feedback))
	}
	if metrics.AlertFrequency > alertFrequencyThreshold {
		recs = append(recs, recommendThresholdAdjustment(r, metrics.AlertFrequency))
	}
	if metrics.PerformanceScore < performanceScoreThreshold {
		recs = append(recs, recommendFieldRefinement(r, metrics.PerformanceScore, feedback))
	}

	var fpFeedback []FeedbackItem
	for _, f := range feedback {
		if f.Kind == "false_positive" {
			fpFeedback = append(fpFeedback, f)
		}
	}
	if len(fpFeedback) >= minFalsePositiveFeedback {
		recs = append(recs, recommendWhitelists(r, fpFeedback)...)
	}

	return recs
}

func recommendNoiseReduction(r *rule.Rule, fpRate float64, feedback []FeedbackItem) Recommendation {
	patterns := extractPatterns(feedback, "false_positive", []string{"process.name", "source.ip"})

	changes := map[string]interface{}{}
	var exclusions []string
	for i, p := range patterns {
		if i >= 3 {
			break
		}
		for _, field := range []string{"process.name", "source.ip"} {
			if v, ok := p.fields[field]; ok {
				// applyModify wraps each exclusion in NOT (...).
				exclusions = append(exclusions, fmt.Sprintf("%s:%q", field, v))
			}
		}
	}
	if len(exclusions) > 0 {
		changes["exclusions"] = exclusions
	}
	if _, ok := r.Detection.Selection["event.category"]; !ok {
		changes["add_event_category"] = true
	}

	return Recommendation{
		ID:          recommendationID(r.RuleID, StrategyNoiseReduction),
		RuleID:      r.RuleID,
		Strategy:    StrategyNoiseReduction,
		Action:      ActionModifyRule,
		Confidence:  0.8,
		Description: fmt.Sprintf("reduce false positive rate from %.3f", fpRate),
		Rationale:   fmt.Sprintf("false positive rate %.3f exceeds threshold %.2f", fpRate, falsePositiveRateThreshold),
		ProposedChanges: changes,
		EstimatedImpact: map[string]float64{
			"false_positive_rate": -0.3,
			"alert_frequency":     -0.2,
			"precision":           0.2,
		},
		Risk:             RiskLow,
		RequiresApproval: false,
	}
}

func recommendThresholdAdjustment(r *rule.Rule, alertFreq float64) Recommendation {
	changes := map[string]interface{}{}
	condition := r.Detection.Condition

	switch {
	case strings.Contains(condition, "count()"):
		if current, ok := extractCountThreshold(condition); ok {
			changes["count_threshold"] = minInt(current*2, 20)
		} else {
			changes["add_count_condition"] = map[string]interface{}{"threshold": 5, "timeframe": "5m"}
		}
	case r.Detection.Timeframe != "":
		changes["add_count_condition"] = map[string]interface{}{"threshold": 5, "timeframe": "5m"}
	default:
		changes["add_timeframe"] = "5m"
		changes["add_count_condition"] = map[string]interface{}{"threshold": 3, "timeframe": "5m"}
	}

	return Recommendation{
		ID:          recommendationID(r.RuleID, StrategyThresholdAdjust),
		RuleID:      r.RuleID,
		Strategy:    StrategyThresholdAdjust,
		Action:      ActionModifyRule,
		Confidence:  0.9,
		Description: fmt.Sprintf("reduce alert frequency from %.1f/hour", alertFreq),
		Rationale:   fmt.Sprintf("alert frequency %.1f/hour exceeds threshold %.1f", alertFreq, alertFrequencyThreshold),
		ProposedChanges: changes,
		EstimatedImpact: map[string]float64{
			"alert_frequency":      -0.5,
			"false_positive_rate": -0.1,
			"precision":            0.1,
		},
		Risk:             RiskLow,
		RequiresApproval: false,
	}
}

func recommendFieldRefinement(r *rule.Rule, perfScore float64, feedback []FeedbackItem) Recommendation {
	tpPatterns := extractPatterns(feedback, "true_positive", []string{"event.category", "event.action", "network.protocol"})

	changes := map[string]interface{}{}
	additional := map[string]interface{}{}
	for _, p := range tpPatterns {
		for field, value := range p.fields {
			if _, exists := r.Detection.Selection[field]; exists {
				continue
			}
			if hasAnyPrefix(field, "process.", "network.", "file.") {
				additional[field] = value
			}
		}
	}
	if len(additional) > 0 {
		changes["additional_conditions"] = additional
	}

	for field, value := range r.Detection.Selection {
		if s, ok := value.(string); ok && strings.Contains(s, "*") {
			changes["refine_"+field] = strings.ReplaceAll(s, "*", "")
		}
	}

	return Recommendation{
		ID:          recommendationID(r.RuleID, StrategyFieldRefinement),
		RuleID:      r.RuleID,
		Strategy:    StrategyFieldRefinement,
		Action:      ActionModifyRule,
		Confidence:  0.7,
		Description: fmt.Sprintf("improve performance score from %.3f", perfScore),
		Rationale:   fmt.Sprintf("performance score %.3f below threshold %.2f", perfScore, performanceScoreThreshold),
		ProposedChanges: changes,
		EstimatedImpact: map[string]float64{
			"performance_score":   0.2,
			"precision":           0.15,
			"false_positive_rate": -0.1,
		},
		Risk:             RiskMedium,
		RequiresApproval: true,
	}
}

func recommendWhitelists(r *rule.Rule, fpFeedback []FeedbackItem) []Recommendation {
	patterns := extractPatterns(fpFeedback, "false_positive", []string{"process.name", "source.ip", "user.name", "host.name"})

	var recs []Recommendation
	for i, p := range patterns {
		if i >= 2 {
			break
		}
		recs = append(recs, Recommendation{
			ID:          r.RuleID + "_whitelist",
			RuleID:      r.RuleID,
			Strategy:    StrategyNoiseReduction,
			Action:      ActionAddWhitelist,
			Confidence:  0.8,
			Description: fmt.Sprintf("add whitelist for false positive pattern #%d", i+1),
			Rationale:   fmt.Sprintf("pattern appears in %d false positives", p.count),
			ProposedChanges: map[string]interface{}{
				"whitelist_pattern": p.fields,
			},
			EstimatedImpact: map[string]float64{
				"false_positive_rate": -0.2,
				"precision":           0.15,
			},
			Risk:             RiskLow,
			RequiresApproval: false,
		})
	}
	return recs
}

type pattern struct {
	fields map[string]interface{}
	count  int
}

// extractPatterns mines alert_data fields out of feedback.Details whose
// Kind matches wantKind, grouping near-duplicates and returning the top
// 5 by frequency — mirroring _extract_fp_patterns/_extract_tp_patterns'
// simplified grouping.
func extractPatterns(feedback []FeedbackItem, wantKind string, fields []string) []pattern {
	var extracted []pattern
	for _, f := range feedback {
		if f.Kind != wantKind {
			continue
		}
		alertData, ok := f.Details["alert_data"].(map[string]interface{})
		if !ok {
			continue
		}
		p := pattern{fields: map[string]interface{}{}, count: 1}
		for _, field := range fields {
			if v, ok := alertData[field]; ok {
				p.fields[field] = v
			}
		}
		if len(p.fields) > 0 {
			extracted = append(extracted, p)
		}
	}

	var grouped []pattern
	for _, p := range extracted {
		merged := false
		for i := range grouped {
			if patternsSimilar(p.fields, grouped[i].fields) {
				grouped[i].count++
				merged = true
				break
			}
		}
		if !merged {
			grouped = append(grouped, p)
		}
	}

	sort.SliceStable(grouped, func(i, j int) bool { return grouped[i].count > grouped[j].count })
	if len(grouped) > 5 {
		grouped = grouped[:5]
	}
	return grouped
}

func patternsSimilar(a, b map[string]interface{}) bool {
	common := 0
	matches := 0
	for field, av := range a {
		bv, ok := b[field]
		if !ok {
			continue
		}
		common++
		if av == bv {
			matches++
		}
	}
	if common == 0 {
		return false
	}
	return float64(matches)/float64(common) > 0.7
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Apply mutates a deep copy of r per recommendation.ProposedChanges and
// validates the result before returning it, mirroring
// SigmaRuleTuningOptimizer.apply_recommendation's dispatch over Action.
func Apply(r *rule.Rule, rec Recommendation) (*rule.Rule, Result) {
	switch rec.Action {
	case ActionModifyRule:
		return applyModify(r, rec)
	case ActionCreateVariant:
		tuned, result := applyModify(r, rec)
		if result.Success {
			variantID := fmt.Sprintf("%s_variant_%s", r.RuleID, rec.Strategy)
			tuned.RuleID = variantID
			result.NewRuleID = variantID
			result.ActionTaken = ActionCreateVariant
		}
		return tuned, result
	case ActionAddWhitelist:
		return r, Result{
			RuleID: r.RuleID, RecommendationID: recommendationID(r.RuleID, rec.Strategy),
			ActionTaken: ActionAddWhitelist, Success: true,
			AppliedChanges: map[string]interface{}{
				"whitelist_added":   true,
				"whitelist_pattern": rec.ProposedChanges["whitelist_pattern"],
			},
		}
	case ActionDisableRule:
		tuned := r.Clone()
		tuned.Disabled = true
		return tuned, Result{
			RuleID: r.RuleID, RecommendationID: recommendationID(r.RuleID, rec.Strategy),
			ActionTaken: ActionDisableRule, Success: true,
			AppliedChanges: map[string]interface{}{"disabled": true},
		}
	case ActionAdjustSeverity:
		return applyAdjustSeverity(r, rec)
	default:
		return r, Result{
			RuleID: r.RuleID, RecommendationID: recommendationID(r.RuleID, rec.Strategy),
			ActionTaken: rec.Action, Success: false,
			ErrorMessage: fmt.Sprintf("unsupported action: %s", rec.Action),
		}
	}
}

func applyModify(r *rule.Rule, rec Recommendation) (*rule.Rule, Result) {
	tuned := r.Clone()
	applied := map[string]interface{}{}
	changes := rec.ProposedChanges

	if exclusions, ok := changes["exclusions"].([]string); ok && len(exclusions) > 0 {
		var clauses []string
		for _, exc := range exclusions {
			clauses = append(clauses, fmt.Sprintf("NOT (%s)", exc))
		}
		tuned.Detection.Condition = fmt.Sprintf("(%s) AND %s", tuned.Detection.Condition, strings.Join(clauses, " AND "))
		applied["added_exclusions"] = exclusions
	}

	if threshold, ok := changes["count_threshold"].(int); ok {
		tuned.Detection.Condition = fmt.Sprintf("selection | count() > %d", threshold)
		applied["count_threshold"] = threshold
	}

	if countCfg, ok := changes["add_count_condition"].(map[string]interface{}); ok {
		threshold := countCfg["threshold"]
		timeframe, _ := countCfg["timeframe"].(string)
		tuned.Detection.Condition = fmt.Sprintf("selection | count() > %v", threshold)
		if timeframe != "" {
			tuned.Detection.Timeframe = timeframe
		}
		applied["added_count_condition"] = countCfg
	}

	if additional, ok := changes["additional_conditions"].(map[string]interface{}); ok {
		for field, value := range additional {
			tuned.Detection.Selection[field] = value
			applied["added_"+field] = value
		}
	}

	if err := tuned.Validate(); err != nil {
		return r, Result{
			RuleID: r.RuleID, RecommendationID: recommendationID(r.RuleID, rec.Strategy),
			ActionTaken: rec.Action, Success: false,
			ErrorMessage: fmt.Sprintf("modified rule validation failed: %v", err),
		}
	}

	tuned.Title = tuned.Title + " (Tuned)"
	return tuned, Result{
		RuleID: r.RuleID, RecommendationID: recommendationID(r.RuleID, rec.Strategy),
		ActionTaken: rec.Action, Success: true, NewRuleID: tuned.RuleID,
		AppliedChanges: applied,
	}
}

func applyAdjustSeverity(r *rule.Rule, rec Recommendation) (*rule.Rule, Result) {
	tuned := r.Clone()
	if level, ok := rec.ProposedChanges["level"].(rule.Level); ok {
		tuned.Level = level
	}
	if err := tuned.Validate(); err != nil {
		return r, Result{
			RuleID: r.RuleID, RecommendationID: recommendationID(r.RuleID, rec.Strategy),
			ActionTaken: rec.Action, Success: false,
			ErrorMessage: fmt.Sprintf("severity adjustment validation failed: %v", err),
		}
	}
	return tuned, Result{
		RuleID: r.RuleID, RecommendationID: recommendationID(r.RuleID, rec.Strategy),
		ActionTaken: rec.Action, Success: true, NewRuleID: tuned.RuleID,
		AppliedChanges: map[string]interface{}{"level": tuned.Level},
	}
}
