package feedback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink is the durable feedback-sink collaborator (spec.md §6): read
// returns items newer than since, optionally filtered by rule IDs; write
// mirrors a single item.
type Sink interface {
	Read(ctx context.Context, since time.Time, ruleIDs []string) ([]Item, error)
	Write(ctx context.Context, item Item) error
}

// Store is the append-only, in-memory per-rule feedback log with an
// optional durable mirror.
type Store struct {
	mu   sync.RWMutex
	byID map[string][]Item // rule_id -> items

	sink  Sink
	clock func() time.Time
}

// New constructs a Store. sink may be nil (no durable mirror). clock
// defaults to time.Now; tests inject a fixed clock so the pure scoring
// functions below never read the wall clock directly (spec.md §9).
func New(sink Sink, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{byID: make(map[string][]Item), sink: sink, clock: clock}
}

var validKinds = map[Kind]struct{}{
	KindTruePositive:     {},
	KindFalsePositive:    {},
	KindBenignPositive:   {},
	KindMissedDetection:  {},
	KindPerformanceIssue: {},
}

// Submit validates and appends a feedback item to the per-rule log,
// optionally mirroring it to the durable sink. Duplicates are never
// rejected; dedup is the caller's responsibility.
func (s *Store) Submit(ctx context.Context, item Item) error {
	if item.RuleID == "" {
		return fmt.Errorf("feedback: rule_id is required")
	}
	if _, ok := validKinds[item.Kind]; !ok {
		return fmt.Errorf("feedback: unknown kind %q", item.Kind)
	}
	if item.Confidence < 0 || item.Confidence > 1 {
		return fmt.Errorf("feedback: confidence %v out of [0,1]", item.Confidence)
	}
	if item.FeedbackID == "" {
		item.FeedbackID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = s.clock()
	}

	s.mu.Lock()
	s.byID[item.RuleID] = append(s.byID[item.RuleID], item)
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.Write(ctx, item); err != nil {
			return fmt.Errorf("feedback: mirror to durable sink: %w", err)
		}
	}
	return nil
}

// Collect pulls feedback newer than now-lookbackHours from the durable
// sink (if present), optionally filtered by ruleIDs, and merges it into
// the in-memory log. Returns the number of items ingested.
func (s *Store) Collect(ctx context.Context, ruleIDs []string, lookbackHours int) (int, error) {
	if s.sink == nil {
		return 0, nil
	}
	since := s.clock().Add(-time.Duration(lookbackHours) * time.Hour)

	items, err := s.sink.Read(ctx, since, ruleIDs)
	if err != nil {
		return 0, fmt.Errorf("feedback: collect from sink: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.byID[item.RuleID] = append(s.byID[item.RuleID], item)
	}
	return len(items), nil
}

// windowItems returns a snapshot of items for ruleID within the last
// evaluationHours, as of s.clock().
func (s *Store) windowItems(ruleID string, evaluationHours int) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.clock().Add(-time.Duration(evaluationHours) * time.Hour)
	var window []Item
	for _, item := range s.byID[ruleID] {
		if !item.Timestamp.Before(cutoff) {
			window = append(window, item)
		}
	}
	return window
}

// Performance derives a RulePerformance snapshot for ruleID over the
// given evaluation window. Returns false if there is no feedback in the
// window at all (performance is undefined, not zero — spec.md §3).
func (s *Store) Performance(ruleID string, evaluationHours int) (Performance, bool) {
	items := s.windowItems(ruleID, evaluationHours)
	if len(items) == 0 {
		return Performance{}, false
	}
	return computePerformance(ruleID, evaluationHours, items, s.clock()), true
}

func computePerformance(ruleID string, evaluationHours int, items []Item, now time.Time) Performance {
	var tp, fp, bp, missed int
	sources := make(map[string]int)
	for _, item := range items {
		switch item.Kind {
		case KindTruePositive:
			tp++
		case KindFalsePositive:
			fp++
		case KindBenignPositive:
			bp++
		case KindMissedDetection:
			missed++
		}
		if item.Source != "" {
			sources[item.Source]++
		}
	}

	totalAlerts := tp + fp + bp

	var precision float64
	if totalAlerts > 0 {
		precision = float64(tp) / float64(totalAlerts)
	}

	var recall float64
	if tp+missed > 0 {
		recall = float64(tp) / float64(tp+missed)
	}

	var f1 float64
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	volume := alertVolumeScore(totalAlerts, evaluationHours)
	performanceScore := 0.4*precision + 0.3*recall + 0.2*f1 + 0.1*volume

	return Performance{
		RuleID:           ruleID,
		EvaluationHours:  evaluationHours,
		TotalAlerts:      totalAlerts,
		TruePositives:    tp,
		FalsePositives:   fp,
		BenignPositives:  bp,
		MissedDetections: missed,
		Precision:        precision,
		Recall:           recall,
		F1:               f1,
		AlertVolumeScore: volume,
		PerformanceScore: performanceScore,
		LastUpdated:      now,
		FeedbackSources:  sources,
	}
}

// alertVolumeScore implements spec.md §4.3's window-normalized volume
// scoring: silence is penalized below 0.1/day, noise is penalized above
// 50/day, and the middle band scores 1.0.
func alertVolumeScore(totalAlerts, windowHours int) float64 {
	days := float64(windowHours) / 24
	if days < 1 {
		days = 1
	}
	alertsPerDay := float64(totalAlerts) / days

	switch {
	case alertsPerDay < 0.1:
		return alertsPerDay * 10
	case alertsPerDay > 50:
		score := 50 / alertsPerDay
		if score < 0.1 {
			return 0.1
		}
		return score
	default:
		return 1.0
	}
}

// Report aggregates per-rule performance over ruleIDs (or every rule with
// feedback, if ruleIDs is empty) into a summary.
func (s *Store) Report(ruleIDs []string, evaluationHours int) Report {
	if len(ruleIDs) == 0 {
		ruleIDs = s.knownRuleIDs()
	}

	report := Report{
		PerRule:      make(map[string]Performance),
		CountsByKind: make(map[Kind]int),
		CountsBySource: make(map[string]int),
	}

	var sum float64
	var scored int
	for _, ruleID := range ruleIDs {
		perf, ok := s.Performance(ruleID, evaluationHours)
		if !ok {
			continue
		}
		report.PerRule[ruleID] = perf
		sum += perf.PerformanceScore
		scored++

		if perf.PerformanceScore > 0.8 {
			report.HighPerformers = append(report.HighPerformers, ruleID)
		}
		if perf.PerformanceScore < 0.5 {
			report.PoorPerformers = append(report.PoorPerformers, ruleID)
		}
		for kind, count := range countsByKind(s.windowItems(ruleID, evaluationHours)) {
			report.CountsByKind[kind] += count
		}
		for source, count := range perf.FeedbackSources {
			report.CountsBySource[source] += count
		}
	}
	if scored > 0 {
		report.AverageScore = sum / float64(scored)
	}
	return report
}

func countsByKind(items []Item) map[Kind]int {
	counts := make(map[Kind]int)
	for _, item := range items {
		counts[item.Kind]++
	}
	return counts
}

// IdentifyProblematic returns rule IDs whose performance score is below
// minScore and whose total alert count is at least minAlerts.
func (s *Store) IdentifyProblematic(evaluationHours int, minScore float64, minAlerts int) []string {
	var problematic []string
	for _, ruleID := range s.knownRuleIDs() {
		perf, ok := s.Performance(ruleID, evaluationHours)
		if !ok {
			continue
		}
		if perf.PerformanceScore < minScore && perf.TotalAlerts >= minAlerts {
			problematic = append(problematic, ruleID)
		}
	}
	return problematic
}

// ItemsForRule returns a snapshot of every feedback item recorded for
// ruleID, regardless of window. Used by the tuning optimizer to mine
// false-positive/true-positive patterns.
func (s *Store) ItemsForRule(ruleID string) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Item(nil), s.byID[ruleID]...)
}

// GetRuleFeedbackSummary returns a lightweight digest of all feedback
// recorded for ruleID, regardless of window (recovered from
// feedback_loop.py's get_rule_feedback_summary — see SPEC_FULL.md §12).
func (s *Store) GetRuleFeedbackSummary(ruleID string) Summary {
	s.mu.RLock()
	items := append([]Item(nil), s.byID[ruleID]...)
	s.mu.RUnlock()

	summary := Summary{RuleID: ruleID, TotalItems: len(items), CountsByKind: make(map[Kind]int)}
	for _, item := range items {
		summary.CountsByKind[item.Kind]++
		if item.Timestamp.After(summary.LastFeedback) {
			summary.LastFeedback = item.Timestamp
		}
	}
	return summary
}

// ClearCache drops the in-memory feedback log (recovered from
// feedback_loop.py's clear_cache — see SPEC_FULL.md §12). The durable
// sink, if any, is unaffected.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string][]Item)
}

func (s *Store) knownRuleIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	return ids
}
