package monitor

import "math"

// Trend is the direction a metric's recent history is moving in.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
	TrendVolatile  Trend = "volatile"
)

// TrendAnalysis is the result of a least-squares fit over a metric's
// recent time series.
type TrendAnalysis struct {
	MetricName    string
	Trend         Trend
	TrendStrength float64
	CurrentValue  float64
	ChangeRate    float64 // per day, assuming hourly samples
	Volatility    float64
	Confidence    float64
	SampleCount   int
}

// minTrendSamples is the smallest series length a trend can be computed
// from (performance_monitor.py requires at least 10 points).
const minTrendSamples = 10

// maxTrendWindow caps how much history feeds the regression (the last 72
// hourly samples, mirroring performance_monitor.py's 72-hour window).
const maxTrendWindow = 72

// analyzeTrend fits a line to the last up-to-72 points of a metric series
// via ordinary least squares and classifies the result. Precedence
// follows spec.md: volatility dominates slope — a metric can be both
// "trending up" and "too noisy to trust", and the noise verdict wins.
func analyzeTrend(metricName string, points []TimeSeriesPoint) (TrendAnalysis, bool) {
	if len(points) < minTrendSamples {
		return TrendAnalysis{}, false
	}
	if len(points) > maxTrendWindow {
		points = points[len(points)-maxTrendWindow:]
	}

	n := float64(len(points))
	var sumX, sumY, sumXY, sumX2 float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumX2 += x * x
	}

	denom := n*sumX2 - sumX*sumX
	var slope float64
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
	}

	mean := sumY / n
	var variance float64
	for _, p := range points {
		d := p.Value - mean
		variance += d * d
	}
	variance /= n
	volatility := math.Sqrt(variance)

	var trend Trend
	switch {
	case volatility > 0.2:
		trend = TrendVolatile
	case math.Abs(slope) < 0.001:
		trend = TrendStable
	case slope > 0.001:
		trend = TrendImproving
	default:
		trend = TrendDeclining
	}

	strength := math.Min(1.0, math.Abs(slope)*100)
	confidence := math.Max(0.0, 1.0-(volatility*2))
	changeRate := slope * 24 // per day, one sample per hour

	return TrendAnalysis{
		MetricName:    metricName,
		Trend:         trend,
		TrendStrength: strength,
		CurrentValue:  points[len(points)-1].Value,
		ChangeRate:    changeRate,
		Volatility:    volatility,
		Confidence:    confidence,
		SampleCount:   len(points),
	}, true
}
