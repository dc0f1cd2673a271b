// Package feedback implements the Feedback Store (spec.md §4.3): an
// append-only per-rule feedback log with an optional durable sink, and
// the derived precision/recall/F1 performance computation. Grounded on
// _examples/original_source/detection/feedback_loop.py
// (DetectionFeedbackLoop).
package feedback

import "time"

// Kind is the judgment an analyst or automation system attaches to an
// alert.
type Kind string

const (
	KindTruePositive     Kind = "true_positive"
	KindFalsePositive    Kind = "false_positive"
	KindBenignPositive   Kind = "benign_positive"
	KindMissedDetection  Kind = "missed_detection"
	KindPerformanceIssue Kind = "performance_issue"
)

// Item is a single, immutable feedback record.
type Item struct {
	FeedbackID   string
	RuleID       string
	Kind         Kind
	Timestamp    time.Time
	Source       string
	Confidence   float64
	AlertID      string
	IncidentID   string
	AnalystNotes string
	Details      map[string]interface{}
}

// Performance is the derived per-rule performance snapshot over an
// evaluation window.
type Performance struct {
	RuleID            string
	EvaluationHours   int
	TotalAlerts       int
	TruePositives     int
	FalsePositives    int
	BenignPositives   int
	MissedDetections  int
	Precision         float64
	Recall            float64
	F1                float64
	AlertVolumeScore  float64
	PerformanceScore  float64
	LastUpdated       time.Time
	FeedbackSources   map[string]int
}

// Report aggregates per-rule performance with summary counts.
type Report struct {
	PerRule          map[string]Performance
	HighPerformers   []string
	PoorPerformers   []string
	AverageScore     float64
	CountsByKind     map[Kind]int
	CountsBySource   map[string]int
}

// Summary is a lightweight per-rule feedback digest
// (GetRuleFeedbackSummary, recovered from feedback_loop.py's
// get_rule_feedback_summary — see SPEC_FULL.md §12).
type Summary struct {
	RuleID       string
	TotalItems   int
	CountsByKind map[Kind]int
	LastFeedback time.Time
}
