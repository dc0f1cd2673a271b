package monitor

import "time"

// HealthAlert flags a metric that has crossed a configured threshold,
// generalized from internal/cache/alerting_system.go's
// CacheMonitoringAlert shape (severity/message/metric/value/threshold).
type HealthAlert struct {
	Severity  string
	Type      string
	Message   string
	Metric    string
	Value     float64
	Threshold float64
}

// Health is the composite health snapshot for one rule over an
// evaluation window.
type Health struct {
	RuleID  string
	Overall float64

	PerformanceScore float64
	ReliabilityScore float64
	EfficiencyScore  float64
	CoverageScore    float64

	AlertFrequency      float64
	FalsePositiveRate   float64
	TruePositiveRate    float64
	MeanTimeToDetection float64 // seconds
	ResourceUsageScore  float64

	Trend           Trend
	TrendConfidence float64

	Alerts []HealthAlert

	LastUpdated     time.Time
	EvaluationHours int
}

// Thresholds is the configurable health-alert threshold table (spec.md
// §4.4), mirroring performance_monitor.py's self.thresholds dict.
type Thresholds struct {
	MinPerformanceScore  float64
	MaxFalsePositiveRate float64
	MinTruePositiveRate  float64
	MaxAlertFrequency    float64
	MinReliabilityScore  float64
	MaxVolatility        float64
}

func generateAlerts(t Thresholds, performance, reliability, falsePositiveRate, alertFrequency float64) []HealthAlert {
	var alerts []HealthAlert

	if performance < t.MinPerformanceScore {
		alerts = append(alerts, HealthAlert{
			Severity: "high", Type: "low_performance",
			Message:   "rule performance score below threshold",
			Metric:    "performance_score",
			Value:     performance,
			Threshold: t.MinPerformanceScore,
		})
	}
	if falsePositiveRate > t.MaxFalsePositiveRate {
		alerts = append(alerts, HealthAlert{
			Severity: "medium", Type: "high_false_positives",
			Message:   "false positive rate above threshold",
			Metric:    "false_positive_rate",
			Value:     falsePositiveRate,
			Threshold: t.MaxFalsePositiveRate,
		})
	}
	if alertFrequency > t.MaxAlertFrequency {
		alerts = append(alerts, HealthAlert{
			Severity: "medium", Type: "high_alert_frequency",
			Message:   "alert frequency above threshold",
			Metric:    "alert_frequency",
			Value:     alertFrequency,
			Threshold: t.MaxAlertFrequency,
		})
	}
	if reliability < t.MinReliabilityScore {
		alerts = append(alerts, HealthAlert{
			Severity: "low", Type: "low_reliability",
			Message:   "reliability score below threshold",
			Metric:    "reliability_score",
			Value:     reliability,
			Threshold: t.MinReliabilityScore,
		})
	}
	return alerts
}
