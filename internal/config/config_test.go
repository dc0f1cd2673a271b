package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Development, cfg.Environment)
	assert.Equal(t, 60, cfg.Loop.CycleIntervalMinutes)
	assert.Equal(t, 24, cfg.Loop.LookbackHours)
	assert.Equal(t, 10, cfg.Loop.MaxRulesPerCycle)
	assert.Equal(t, 168, cfg.Loop.PerformanceWindowHours)
	assert.True(t, cfg.Loop.TuningEnabled)
	assert.False(t, cfg.Loop.AutoDeploymentEnabled)
	assert.Equal(t, []string{"elasticsearch", "splunk", "qradar"}, cfg.Loop.DetectionEngines)
	assert.Equal(t, 10, cfg.Tuning.MinFeedbackSamples)
	assert.Equal(t, 3, cfg.Tuning.MaxRecommendationsPerRule)
	assert.True(t, cfg.Tuning.AutoApplyLowRisk)
	assert.InDelta(t, 0.6, cfg.Thresholds.MinPerformanceScore, 1e-9)
	assert.InDelta(t, 0.2, cfg.Thresholds.MaxFalsePositiveRate, 1e-9)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("CYCLE_INTERVAL_MINUTES", "15")
	t.Setenv("MAX_RULES_PER_CYCLE", "5")
	t.Setenv("DETECTION_ENGINES", "elasticsearch,mock")
	t.Setenv("AUTO_DEPLOYMENT_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Production, cfg.Environment)
	assert.Equal(t, 15, cfg.Loop.CycleIntervalMinutes)
	assert.Equal(t, 5, cfg.Loop.MaxRulesPerCycle)
	assert.Equal(t, []string{"elasticsearch", "mock"}, cfg.Loop.DetectionEngines)
	assert.True(t, cfg.Loop.AutoDeploymentEnabled)
}

func TestValidate_RejectsInvalidCycleInterval(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Loop.CycleIntervalMinutes = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsEmptyDetectionEngines(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Loop.DetectionEngines = nil
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsTargetWithoutEngineType(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Deployment.Targets = []TargetConfig{{Name: "prod-es"}}
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := validBaseConfig()
	assert.NoError(t, cfg.Validate())
}

func validBaseConfig() *Config {
	return &Config{
		Loop: LoopConfig{
			CycleIntervalMinutes:   60,
			LookbackHours:          24,
			MaxRulesPerCycle:       10,
			PerformanceWindowHours: 168,
			DetectionEngines:       []string{"mock"},
		},
		Tuning: TuningConfig{
			MinFeedbackSamples:        10,
			MaxRecommendationsPerRule: 3,
		},
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "CYCLE_INTERVAL_MINUTES", "LOOKBACK_HOURS", "MAX_RULES_PER_CYCLE",
		"DETECTION_ENGINES", "AUTO_DEPLOYMENT_ENABLED", "MIN_FEEDBACK_SAMPLES",
	} {
		os.Unsetenv(key)
	}
}
