package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersentinel/detection-loop/internal/config"
)

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.ObservabilityConfig{LogLevel: "not-a-level", LogFormat: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestLogger_FluentHelpersDoNotPanic(t *testing.T) {
	logger := NewNop()

	scoped := logger.
		WithComponent("coordinator").
		WithRuleID("R1").
		WithCycleID("C1").
		WithEngine("elasticsearch").
		WithDuration(5 * time.Millisecond).
		WithError(errors.New("boom"))

	assert.NotNil(t, scoped)
	scoped.Info("cycle step completed")
}

func TestMetrics_RegistersAllInstruments(t *testing.T) {
	m := NewMetrics()
	m.CyclesTotal.WithLabelValues("completed").Inc()
	m.DeploymentsTotal.WithLabelValues("elasticsearch", "success").Inc()
	m.RecommendationsTotal.WithLabelValues("noise_reduction", "low").Inc()
	m.AutoAppliedTotal.Inc()
	m.RuleHealthScore.WithLabelValues("R1").Set(0.9)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
