package deployer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersentinel/detection-loop/internal/engine"
	"github.com/cybersentinel/detection-loop/internal/rule"
)

func testRule(id string) *rule.Rule {
	return &rule.Rule{
		RuleID: id,
		Title:  "Suspicious process",
		Detection: rule.DetectionBody{
			Selection: map[string]interface{}{"process.name": "chrome.exe"},
			Condition: "selection",
		},
		Level: rule.LevelHigh,
	}
}

func TestDeployRule_CleanDeployNoFeedback(t *testing.T) {
	reg := engine.NewDefaultRegistry(engine.NewClient(0))
	targets := []engine.Target{{Name: "T1", EngineType: "mock", Endpoint: "", Enabled: true}}
	d := New(reg, targets, nil)

	success, results := d.DeployRule(context.Background(), testRule("R1"), []string{"mock"}, true)
	require.True(t, success)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}

func TestDeployRule_PartialDeploymentReturnsFalse(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet { // probe succeeds, deploy fails
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failServer.Close()
	downServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	downServer.Close() // immediately unreachable

	reg := engine.NewDefaultRegistry(engine.NewClient(0))
	targets := []engine.Target{
		{Name: "T1", EngineType: "elasticsearch", Endpoint: okServer.URL, Enabled: true},
		{Name: "T2", EngineType: "elasticsearch", Endpoint: failServer.URL, Enabled: true},
		{Name: "T3", EngineType: "elasticsearch", Endpoint: downServer.URL, Enabled: true},
	}
	d := New(reg, targets, nil)

	success, results := d.DeployRule(context.Background(), testRule("R5"), []string{"elasticsearch"}, true)
	assert.False(t, success)
	// T3's probe fails (connection refused), so only T1/T2 are attempted.
	assert.Len(t, results, 2)
}

func TestDeployRule_AutoDeployFalseForcesValidationOnly(t *testing.T) {
	downServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	downServer.Close() // would fail both probe and deploy if actually contacted

	reg := engine.NewDefaultRegistry(engine.NewClient(0))
	targets := []engine.Target{{Name: "T1", EngineType: "elasticsearch", Endpoint: downServer.URL, Enabled: true}}
	d := New(reg, targets, nil)

	success, results := d.DeployRule(context.Background(), testRule("R1"), []string{"elasticsearch"}, false)
	require.True(t, success)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Empty(t, results[0].DeployedRuleID)
}

func TestDeployRule_NoMatchingTargetsReturnsFalse(t *testing.T) {
	reg := engine.NewDefaultRegistry(engine.NewClient(0))
	d := New(reg, nil, nil)
	success, results := d.DeployRule(context.Background(), testRule("R1"), []string{"mock"}, true)
	assert.False(t, success)
	assert.Nil(t, results)
}

func TestTestAllConnections_ProbesEveryTarget(t *testing.T) {
	reg := engine.NewDefaultRegistry(engine.NewClient(0))
	targets := []engine.Target{
		{Name: "T1", EngineType: "mock", Enabled: true},
		{Name: "T2", EngineType: "mock", Enabled: true},
	}
	d := New(reg, targets, nil)

	statuses := d.TestAllConnections(context.Background())
	assert.True(t, statuses["T1"])
	assert.True(t, statuses["T2"])
}

func TestDeploymentStatus_ReflectsConfiguredTargets(t *testing.T) {
	reg := engine.NewDefaultRegistry(engine.NewClient(0))
	targets := []engine.Target{{Name: "T1", EngineType: "mock", Enabled: true}}
	d := New(reg, targets, nil)

	statuses := d.DeploymentStatus()
	require.Len(t, statuses, 1)
	assert.Equal(t, "T1", statuses[0].Name)
	assert.Equal(t, "mock", statuses[0].EngineType)
}
