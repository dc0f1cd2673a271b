package coordinator

import (
	"github.com/cybersentinel/detection-loop/internal/collaborators"
	"github.com/cybersentinel/detection-loop/internal/feedback"
	"github.com/cybersentinel/detection-loop/internal/monitor"
	"github.com/cybersentinel/detection-loop/internal/rule"
	"github.com/cybersentinel/detection-loop/internal/tuning"
)

// tuningSource adapts the coordinator's rule repository, feedback store,
// and monitor into the narrow tuning.RuleSource interface, so the
// tuning package never depends on any of the three directly.
type tuningSource struct {
	repo            collaborators.RuleRepository
	feedbackStore   *feedback.Store
	monitor         *monitor.Monitor
	evaluationHours int
}

func (s *tuningSource) Rule(ruleID string) (*rule.Rule, bool) {
	return s.repo.Get(ruleID)
}

func (s *tuningSource) Feedback(ruleID string) []tuning.FeedbackItem {
	items := s.feedbackStore.ItemsForRule(ruleID)
	out := make([]tuning.FeedbackItem, len(items))
	for i, item := range items {
		out[i] = tuning.FeedbackItem{Kind: string(item.Kind), Details: item.Details}
	}
	return out
}

func (s *tuningSource) Metrics(ruleID string) (tuning.Metrics, bool) {
	health := s.monitor.Analyze(ruleID, s.evaluationHours)
	return tuning.Metrics{
		PerformanceScore:  health.PerformanceScore,
		FalsePositiveRate: health.FalsePositiveRate,
		AlertFrequency:    health.AlertFrequency,
	}, true
}
