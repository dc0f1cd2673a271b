package collaborators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersentinel/detection-loop/internal/rule"
)

func testRule(id string) *rule.Rule {
	return &rule.Rule{
		RuleID: id,
		Detection: rule.DetectionBody{
			Selection: map[string]interface{}{"a": "b"},
			Condition: "selection",
		},
	}
}

func TestInMemoryRuleRepository_GetReturnsSeededRule(t *testing.T) {
	repo := NewInMemoryRuleRepository([]*rule.Rule{testRule("R1")})
	r, ok := repo.Get("R1")
	require.True(t, ok)
	assert.Equal(t, "R1", r.RuleID)
}

func TestInMemoryRuleRepository_SaveAddsNewRule(t *testing.T) {
	repo := NewInMemoryRuleRepository(nil)
	require.NoError(t, repo.Save(testRule("R2")))

	r, ok := repo.Get("R2")
	require.True(t, ok)
	assert.Equal(t, "R2", r.RuleID)
	assert.Len(t, repo.All(), 1)
}

func TestInMemoryRuleRepository_GetMissingRuleReturnsFalse(t *testing.T) {
	repo := NewInMemoryRuleRepository(nil)
	_, ok := repo.Get("missing")
	assert.False(t, ok)
}

func TestNoopKnowledgeGraphSink_NeverErrors(t *testing.T) {
	sink := NoopKnowledgeGraphSink{}
	err := sink.Update(nil, "cycle1", nil, nil)
	assert.NoError(t, err)
}
