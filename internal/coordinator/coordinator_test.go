package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersentinel/detection-loop/internal/collaborators"
	"github.com/cybersentinel/detection-loop/internal/config"
	"github.com/cybersentinel/detection-loop/internal/engine"
	"github.com/cybersentinel/detection-loop/internal/feedback"
	"github.com/cybersentinel/detection-loop/internal/monitor"
	"github.com/cybersentinel/detection-loop/internal/rule"
)

func testConfig() config.Config {
	return config.Config{
		Loop: config.LoopConfig{
			CycleIntervalMinutes:   60,
			LookbackHours:          24,
			MaxRulesPerCycle:       10,
			PerformanceWindowHours: 168,
			TuningEnabled:          true,
			DetectionEngines:       []string{"mock"},
		},
		Tuning: config.TuningConfig{
			MinFeedbackSamples:       10,
			MaxRecommendationsPerRule: 3,
			AutoApplyLowRisk:         true,
			TuningScoreThreshold:     0.7,
			MaxHistoryEntries:        100,
		},
		Deployment: config.DeploymentConfig{
			Targets: []config.TargetConfig{
				{Name: "mock-primary", EngineType: "mock", Enabled: true},
			},
		},
	}
}

func testRegistry() *engine.Registry {
	reg := engine.NewRegistry()
	reg.Register(engine.NewMockAdapter())
	return reg
}

func testRule(id, severity string) *rule.Rule {
	return &rule.Rule{
		RuleID:           id,
		Title:            "Suspicious process",
		Detection:        rule.DetectionBody{Selection: map[string]interface{}{"process.name": "*.exe"}, Condition: "selection"},
		Level:            rule.LevelMedium,
		IncidentSeverity: severity,
	}
}

// fakeIncidentSource returns a fixed set of incidents/candidates exactly
// once, then nothing, so repeated cycles don't re-deploy the same rules.
type fakeIncidentSource struct {
	mu         sync.Mutex
	incidents  []collaborators.Incident
	candidates []*rule.Rule
	served     bool
}

func (f *fakeIncidentSource) CollectNewDetections(ctx context.Context, since time.Time) ([]collaborators.Incident, []*rule.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.served {
		return nil, nil, nil
	}
	f.served = true
	return f.incidents, f.candidates, nil
}

type noopAlertSource struct{}

func (noopAlertSource) CollectAlertSamples(ctx context.Context, ruleIDs []string, since time.Time) ([]collaborators.AlertSample, error) {
	return nil, nil
}

func newTestDeps(t *testing.T, incidentSrc collaborators.IncidentSource) Dependencies {
	t.Helper()
	store := feedback.New(nil, nil)
	mon := monitor.New(monitor.Thresholds{
		MinPerformanceScore:  0.5,
		MaxFalsePositiveRate: 0.3,
		MinTruePositiveRate:  0.5,
		MaxAlertFrequency:    10,
		MinReliabilityScore:  0.5,
		MaxVolatility:        0.2,
	}, nil, nil)
	return Dependencies{
		Registry:       testRegistry(),
		IncidentSource: incidentSrc,
		AlertSource:    noopAlertSource{},
		RuleRepository: collaborators.NewInMemoryRuleRepository(nil),
		FeedbackStore:  store,
		Monitor:        mon,
	}
}

func TestRunSingleCycle_DeploysQualifyingHighSeverityRule(t *testing.T) {
	incidentSrc := &fakeIncidentSource{
		incidents:  []collaborators.Incident{{IncidentID: "INC1", Severity: "high", RuleCount: 1}},
		candidates: []*rule.Rule{testRule("R1", "high")},
	}
	deps := newTestDeps(t, incidentSrc)
	c := New(testConfig(), deps)

	cycle := c.RunSingleCycle(context.Background())

	require.Empty(t, cycle.Errors)
	assert.Equal(t, StatusCompleted, cycle.Status)
	assert.Equal(t, 1, cycle.IncidentsProcessed)
	assert.Equal(t, 1, cycle.RulesDeployed)
	assert.Contains(t, c.deployedRules, "R1")
}

func TestRunSingleCycle_SkipsLowSeverityCandidates(t *testing.T) {
	incidentSrc := &fakeIncidentSource{
		incidents:  []collaborators.Incident{{IncidentID: "INC2", Severity: "low", RuleCount: 1}},
		candidates: []*rule.Rule{testRule("R2", "low")},
	}
	deps := newTestDeps(t, incidentSrc)
	c := New(testConfig(), deps)

	cycle := c.RunSingleCycle(context.Background())

	assert.Equal(t, 0, cycle.RulesDeployed)
	assert.NotContains(t, c.deployedRules, "R2")
}

func TestRunSingleCycle_CapsDeploymentsAtMaxRulesPerCycle(t *testing.T) {
	var candidates []*rule.Rule
	for i := 0; i < 5; i++ {
		candidates = append(candidates, testRule(string(rune('A'+i)), "critical"))
	}
	incidentSrc := &fakeIncidentSource{candidates: candidates}
	deps := newTestDeps(t, incidentSrc)
	cfg := testConfig()
	cfg.Loop.MaxRulesPerCycle = 2
	c := New(cfg, deps)

	cycle := c.RunSingleCycle(context.Background())

	assert.Equal(t, 2, cycle.RulesDeployed)
}

func TestRunSingleCycle_DoesNotRedeployAlreadyDeployedRule(t *testing.T) {
	incidentSrc := &fakeIncidentSource{candidates: []*rule.Rule{testRule("R3", "critical")}}
	deps := newTestDeps(t, incidentSrc)
	c := New(testConfig(), deps)

	first := c.RunSingleCycle(context.Background())
	assert.Equal(t, 1, first.RulesDeployed)

	incidentSrc.mu.Lock()
	incidentSrc.served = false
	incidentSrc.mu.Unlock()

	second := c.RunSingleCycle(context.Background())
	assert.Equal(t, 0, second.RulesDeployed, "already-deployed rule should not be redeployed")
}

func TestRunSingleCycle_RecordsErrorWithoutAbortingRemainingSteps(t *testing.T) {
	deps := newTestDeps(t, &fakeIncidentSource{})
	deps.KnowledgeGraph = failingKnowledgeGraph{}
	c := New(testConfig(), deps)

	cycle := c.RunSingleCycle(context.Background())

	require.Len(t, cycle.Errors, 1)
	assert.Equal(t, StatusFailed, cycle.Status)
	// The knowledge-graph update is the last step; the cycle still
	// finishes and keeps what the feedback/monitor steps produced.
	assert.NotNil(t, cycle.PerformanceScores)
}

type failingKnowledgeGraph struct{}

func (failingKnowledgeGraph) Update(ctx context.Context, cycleID string, incidents []collaborators.Incident, performanceScores map[string]float64) error {
	return assert.AnError
}

func TestGetStatus_ReflectsRunningAndHistory(t *testing.T) {
	deps := newTestDeps(t, &fakeIncidentSource{})
	c := New(testConfig(), deps)

	c.RunSingleCycle(context.Background())
	c.RunSingleCycle(context.Background())

	status := c.GetStatus()
	assert.False(t, status.Running)
	assert.Equal(t, 2, status.TotalCycles)
	assert.Equal(t, 2, status.RecentPerformance.CyclesConsidered)
}

func TestGetCycleHistory_RespectsLimit(t *testing.T) {
	deps := newTestDeps(t, &fakeIncidentSource{})
	c := New(testConfig(), deps)

	for i := 0; i < 3; i++ {
		c.RunSingleCycle(context.Background())
	}

	history := c.GetCycleHistory(2)
	assert.Len(t, history, 2)
}

func TestStop_HaltsRunningLoop(t *testing.T) {
	deps := newTestDeps(t, &fakeIncidentSource{})
	cfg := testConfig()
	cfg.Loop.CycleIntervalMinutes = 1
	c := New(cfg, deps)

	go c.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	status := c.GetStatus()
	assert.False(t, status.Running)
}
