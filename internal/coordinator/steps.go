package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/cybersentinel/detection-loop/internal/collaborators"
	"github.com/cybersentinel/detection-loop/internal/rule"
)

// collectNewDetections is step 1: pull newly closed incidents and any
// validated candidate rules they produced, mirroring
// _collect_new_detections. A nil IncidentSource is treated as "nothing
// new this cycle" rather than an error.
func (c *Coordinator) collectNewDetections(ctx context.Context, since time.Time) ([]collaborators.Incident, []*rule.Rule, error) {
	if c.incidents == nil {
		return nil, nil, nil
	}
	incidents, candidates, err := c.incidents.CollectNewDetections(ctx, since)
	if err != nil {
		return nil, nil, fmt.Errorf("collect new detections: %w", err)
	}
	return incidents, candidates, nil
}

// evaluateAndDeployRules is step 2: filter candidate rules down to
// high/critical-severity, not-already-deployed ones, cap the batch at
// MaxRulesPerCycle, and deploy each through the configured engines,
// mirroring _evaluate_and_deploy_rules.
func (c *Coordinator) evaluateAndDeployRules(ctx context.Context, candidates []*rule.Rule) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	var eligible []*rule.Rule
	for _, r := range candidates {
		if _, already := c.deployedRules[r.RuleID]; already {
			continue
		}
		if r.IncidentSeverity != "high" && r.IncidentSeverity != "critical" {
			continue
		}
		if err := r.Validate(); err != nil {
			continue
		}
		eligible = append(eligible, r)
	}
	c.mu.Unlock()

	if max := c.cfg.Loop.MaxRulesPerCycle; max > 0 && len(eligible) > max {
		eligible = eligible[:max]
	}

	var deployed int
	var firstErr error
	for _, r := range eligible {
		success, _ := c.deployer.DeployRule(ctx, r, c.cfg.Loop.DetectionEngines, c.cfg.Loop.AutoDeploymentEnabled)
		if !success {
			continue
		}

		c.mu.Lock()
		c.deployedRules[r.RuleID] = struct{}{}
		c.mu.Unlock()

		if c.rules != nil {
			if err := c.rules.Save(r); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("persist deployed rule %s: %w", r.RuleID, err)
			}
		}
		deployed++
	}
	return deployed, firstErr
}

// collectRuleFeedback is step 3: pull feedback on every currently
// deployed rule, mirroring _collect_rule_feedback.
func (c *Coordinator) collectRuleFeedback(ctx context.Context) (int, error) {
	if c.feedbackStore == nil {
		return 0, nil
	}
	ruleIDs := c.deployedRuleIDs()
	count, err := c.feedbackStore.Collect(ctx, ruleIDs, c.cfg.Loop.PerformanceWindowHours)
	if err != nil {
		return 0, fmt.Errorf("collect rule feedback: %w", err)
	}
	return count, nil
}

// monitorRulePerformance is step 4: refresh each deployed rule's rolling
// metric series from the alert source (if configured) and derive an
// overall health score per rule, mirroring _monitor_rule_performance.
func (c *Coordinator) monitorRulePerformance(ctx context.Context) (map[string]float64, error) {
	if c.monitor == nil {
		return map[string]float64{}, nil
	}
	ruleIDs := c.deployedRuleIDs()
	if len(ruleIDs) == 0 {
		return map[string]float64{}, nil
	}

	var sampleErr error
	if c.alerts != nil {
		since := time.Now().Add(-time.Duration(c.cfg.Loop.PerformanceWindowHours) * time.Hour)
		samples, err := c.alerts.CollectAlertSamples(ctx, ruleIDs, since)
		if err != nil {
			sampleErr = fmt.Errorf("collect alert samples: %w", err)
		}
		for _, s := range samples {
			c.monitor.RecordAlertVolume(s.RuleID, s.Timestamp, s.AlertCount)
			if s.HasPrecision {
				c.monitor.RecordPrecision(s.RuleID, s.Timestamp, s.Precision)
			}
			if s.HasProcessingTime {
				c.monitor.RecordProcessingTime(s.RuleID, s.Timestamp, s.ProcessingTimeMillis)
			}
			if s.HasEfficiency {
				c.monitor.RecordEfficiency(s.RuleID, s.Timestamp, s.Efficiency)
			}
		}
	}

	if c.resources != nil {
		if efficiency, err := c.resources.Sample(ctx); err == nil {
			now := time.Now()
			for _, ruleID := range ruleIDs {
				c.monitor.RecordEfficiency(ruleID, now, efficiency)
			}
		} else if sampleErr == nil {
			sampleErr = fmt.Errorf("sample host resources: %w", err)
		}
	}

	scores := make(map[string]float64, len(ruleIDs))
	for _, ruleID := range ruleIDs {
		health := c.monitor.Analyze(ruleID, c.cfg.Loop.PerformanceWindowHours)
		scores[ruleID] = health.Overall
	}
	return scores, sampleErr
}

// tuneRules is step 5: hand performance scores to the tuning engine,
// mirroring _tune_rules.
func (c *Coordinator) tuneRules(scores map[string]float64) (int, error) {
	if c.tuningEngine == nil || len(scores) == 0 {
		return 0, nil
	}
	deployed := make(map[string]struct{}, len(c.deployedRuleIDs()))
	for _, id := range c.deployedRuleIDs() {
		deployed[id] = struct{}{}
	}
	return c.tuningEngine.TuneRules(scores, deployed), nil
}

func (c *Coordinator) deployedRuleIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.deployedRules))
	for id := range c.deployedRules {
		ids = append(ids, id)
	}
	return ids
}
