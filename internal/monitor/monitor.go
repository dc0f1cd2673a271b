// Package monitor implements the Performance Monitor (spec.md §4.4):
// per-rule rolling metric series, composite health scoring, trend
// classification, and threshold-driven health alerts. Grounded on
// _examples/original_source/detection/performance_monitor.py
// (RulePerformanceMonitor).
package monitor

import (
	"math"
	"sync"
	"time"

	"github.com/cybersentinel/detection-loop/internal/observability"
)

const (
	metricAlertFrequency = "alert_frequency"
	metricPrecision      = "precision"
	metricProcessingTime = "processing_time"
	metricEfficiency     = "efficiency"

	recentWindow = 24 // last-24-samples window; reliability and alert frequency use the whole series instead
)

// Monitor tracks rolling per-rule metric series and derives composite
// health snapshots from them.
type Monitor struct {
	mu         sync.RWMutex
	series     map[string]map[string]*series // rule_id -> metric -> series
	thresholds Thresholds
	cache      Cache
	logger     *observability.Logger
}

// Cache is the optional read-through cache collaborator for computed
// Health snapshots, implemented by RedisCache.
type Cache interface {
	GetHealth(ruleID string) (Health, bool)
	SetHealth(ruleID string, health Health)
	DeleteHealth(ruleID string)
}

// New constructs a Monitor. cache may be nil (no caching).
func New(thresholds Thresholds, cache Cache, logger *observability.Logger) *Monitor {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Monitor{
		series:     make(map[string]map[string]*series),
		thresholds: thresholds,
		cache:      cache,
		logger:     logger.WithComponent("monitor"),
	}
}

func (m *Monitor) seriesFor(ruleID, metric string) *series {
	m.mu.Lock()
	defer m.mu.Unlock()
	byMetric, ok := m.series[ruleID]
	if !ok {
		byMetric = make(map[string]*series)
		m.series[ruleID] = byMetric
	}
	s, ok := byMetric[metric]
	if !ok {
		s = &series{}
		byMetric[metric] = s
	}
	return s
}

// RecordAlertVolume appends an hourly alert-count sample and invalidates
// ruleID's cached Health snapshot, since a fresh sample makes it stale.
func (m *Monitor) RecordAlertVolume(ruleID string, at time.Time, count float64) {
	m.seriesFor(ruleID, metricAlertFrequency).append(TimeSeriesPoint{Timestamp: at, Value: count})
	m.invalidate(ruleID)
}

// RecordPrecision appends an hourly precision sample (true positives
// over total classified alerts in that hour) and invalidates ruleID's
// cached Health snapshot.
func (m *Monitor) RecordPrecision(ruleID string, at time.Time, precision float64) {
	m.seriesFor(ruleID, metricPrecision).append(TimeSeriesPoint{Timestamp: at, Value: precision})
	m.invalidate(ruleID)
}

// RecordProcessingTime appends an hourly average processing-time sample,
// in milliseconds, and invalidates ruleID's cached Health snapshot.
func (m *Monitor) RecordProcessingTime(ruleID string, at time.Time, millis float64) {
	m.seriesFor(ruleID, metricProcessingTime).append(TimeSeriesPoint{Timestamp: at, Value: millis})
	m.invalidate(ruleID)
}

// RecordEfficiency appends an hourly resource-efficiency sample in
// [0,1], combining CPU and memory headroom, and invalidates ruleID's
// cached Health snapshot.
func (m *Monitor) RecordEfficiency(ruleID string, at time.Time, efficiency float64) {
	m.seriesFor(ruleID, metricEfficiency).append(TimeSeriesPoint{Timestamp: at, Value: efficiency})
	m.invalidate(ruleID)
}

// invalidate evicts ruleID's cached Health snapshot so the next Analyze
// recomputes from the series just written to, rather than returning a
// snapshot from before this cycle's samples existed.
func (m *Monitor) invalidate(ruleID string) {
	if m.cache != nil {
		m.cache.DeleteHealth(ruleID)
	}
}

// Analyze derives a composite Health snapshot for ruleID from its
// recorded series, consulting the cache first when present.
// evaluationHours is only stored on the snapshot: the scores are taken
// over sample counts, not timestamps (the last 24 samples, or for
// reliability and alert frequency every retained sample, at most 168).
func (m *Monitor) Analyze(ruleID string, evaluationHours int) Health {
	if m.cache != nil {
		if cached, ok := m.cache.GetHealth(ruleID); ok {
			return cached
		}
	}

	m.mu.RLock()
	byMetric, ok := m.series[ruleID]
	var precisionSeries, alertSeries, processingSeries, efficiencySeries *series
	if ok {
		precisionSeries = byMetric[metricPrecision]
		alertSeries = byMetric[metricAlertFrequency]
		processingSeries = byMetric[metricProcessingTime]
		efficiencySeries = byMetric[metricEfficiency]
	}
	m.mu.RUnlock()

	performanceScore := performanceScoreOf(precisionSeries)
	reliabilityScore := reliabilityScoreOf(precisionSeries)
	efficiencyScore := efficiencyScoreOf(efficiencySeries)
	coverageScore := coverageScoreOf(alertSeries)

	alertFrequency := alertFrequencyOf(alertSeries)
	falsePositiveRate := falsePositiveRateOf(precisionSeries)
	truePositiveRate := truePositiveRateOf(precisionSeries)
	mtd := meanTimeToDetectionOf(processingSeries)

	overall := performanceScore*0.3 + reliabilityScore*0.25 + efficiencyScore*0.2 + coverageScore*0.25

	var trend Trend = TrendStable
	var trendConfidence float64
	if precisionSeries != nil {
		if analysis, ok := analyzeTrend(metricPrecision, precisionSeries.points); ok {
			trend = analysis.Trend
			trendConfidence = analysis.Confidence
		}
	}

	alerts := generateAlerts(m.thresholds, performanceScore, reliabilityScore, falsePositiveRate, alertFrequency)

	health := Health{
		RuleID:              ruleID,
		Overall:             overall,
		PerformanceScore:    performanceScore,
		ReliabilityScore:    reliabilityScore,
		EfficiencyScore:     efficiencyScore,
		CoverageScore:       coverageScore,
		AlertFrequency:      alertFrequency,
		FalsePositiveRate:   falsePositiveRate,
		TruePositiveRate:    truePositiveRate,
		MeanTimeToDetection: mtd,
		ResourceUsageScore:  efficiencyScore,
		Trend:               trend,
		TrendConfidence:     trendConfidence,
		Alerts:              alerts,
		LastUpdated:         time.Now(),
		EvaluationHours:     evaluationHours,
	}

	if m.cache != nil {
		m.cache.SetHealth(ruleID, health)
	}
	return health
}

// performanceScoreOf mirrors _calculate_performance_score: the average
// of the last 24 precision samples, neutral (0.5) with no data.
func performanceScoreOf(s *series) float64 {
	if s == nil || len(s.points) == 0 {
		return 0.5
	}
	return clamp01(average(s.last(recentWindow)))
}

// reliabilityScoreOf mirrors _calculate_reliability_score: 1 minus 2x
// the standard deviation of precision, requiring at least 5 samples.
func reliabilityScoreOf(s *series) float64 {
	if s == nil || len(s.points) < 5 {
		return 0.5
	}
	values := s.points
	mean := average(values)
	var variance float64
	for _, p := range values {
		d := p.Value - mean
		variance += d * d
	}
	variance /= float64(len(values))
	stdDev := math.Sqrt(variance)
	return clamp01(1.0 - stdDev*2)
}

// efficiencyScoreOf mirrors _calculate_efficiency_score: average of the
// last 24 efficiency samples, optimistic (0.8) with no data.
func efficiencyScoreOf(s *series) float64 {
	if s == nil || len(s.points) == 0 {
		return 0.8
	}
	return clamp01(average(s.last(recentWindow)))
}

// coverageScoreOf mirrors _calculate_coverage_score: an optimal alert
// band of 0.5-5/hour scores 1.0, with linear penalties outside it.
func coverageScoreOf(s *series) float64 {
	if s == nil || len(s.points) == 0 {
		return 0.5
	}
	avgFrequency := average(s.last(recentWindow))

	var coverage float64
	switch {
	case avgFrequency >= 0.5 && avgFrequency <= 5.0:
		coverage = 1.0
	case avgFrequency < 0.5:
		coverage = avgFrequency / 0.5
	default:
		coverage = 5.0 / avgFrequency
		if coverage < 0.1 {
			coverage = 0.1
		}
	}
	return clamp01(coverage)
}

// alertFrequencyOf mirrors _calculate_alert_frequency: total alerts over
// the number of hourly samples recorded.
func alertFrequencyOf(s *series) float64 {
	if s == nil || len(s.points) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range s.points {
		total += p.Value
	}
	hours := len(s.points)
	if hours < 1 {
		hours = 1
	}
	return total / float64(hours)
}

// falsePositiveRateOf mirrors _calculate_false_positive_rate: 1 minus
// average precision over the last 24 samples.
func falsePositiveRateOf(s *series) float64 {
	if s == nil || len(s.points) == 0 {
		return 0
	}
	avg := average(s.last(recentWindow))
	if avg < 0 {
		return 0
	}
	return 1.0 - avg
}

// truePositiveRateOf mirrors _calculate_true_positive_rate: precision
// used directly as a proxy for recall, since per-alert ground truth
// isn't available to the monitor (spec.md §13 Open Question: kept as a
// documented approximation rather than invented data).
func truePositiveRateOf(s *series) float64 {
	if s == nil || len(s.points) == 0 {
		return 0
	}
	return average(s.last(recentWindow))
}

// meanTimeToDetectionOf mirrors _calculate_mtd: average of the last 24
// processing-time samples, converted from milliseconds to seconds, with
// a 300s default when no data exists.
func meanTimeToDetectionOf(s *series) float64 {
	if s == nil || len(s.points) == 0 {
		return 300.0
	}
	return average(s.last(recentWindow)) / 1000.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// GetThresholds returns the current threshold table.
func (m *Monitor) GetThresholds() Thresholds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thresholds
}

// UpdateThresholds replaces the threshold table used by future Analyze
// calls.
func (m *Monitor) UpdateThresholds(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = t
}

// ClearCaches drops all recorded series (recovered from
// performance_monitor.py's clear_caches — see SPEC_FULL.md §12).
func (m *Monitor) ClearCaches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series = make(map[string]map[string]*series)
}
