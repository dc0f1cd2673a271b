package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cybersentinel/detection-loop/internal/rule"
)

// MockAdapter is a no-op adapter used for dry runs and tests. It always
// succeeds, matching MockAdapter in the Python original.
type MockAdapter struct{}

// NewMockAdapter constructs a MockAdapter.
func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

// EngineType implements Adapter.
func (a *MockAdapter) EngineType() string { return "mock" }

// Translate implements Adapter.
func (a *MockAdapter) Translate(r *rule.Rule) (string, error) {
	return fmt.Sprintf("mock-rule:%s", r.RuleID), nil
}

// Probe implements Adapter.
func (a *MockAdapter) Probe(ctx context.Context, target Target) bool {
	return true
}

// Deploy implements Adapter.
func (a *MockAdapter) Deploy(ctx context.Context, r *rule.Rule, target Target) DeploymentResult {
	converted, _ := a.Translate(r)
	return DeploymentResult{
		RuleID:         r.RuleID,
		TargetName:     target.Name,
		Success:        true,
		DeployedRuleID: fmt.Sprintf("mock_%s", r.RuleID),
		DeploymentTime: time.Now(),
		ConvertedRule:  converted,
	}
}
