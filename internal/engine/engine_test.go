package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersentinel/detection-loop/internal/rule"
)

func testRule() *rule.Rule {
	return &rule.Rule{
		RuleID: "R1",
		Title:  "Suspicious process",
		Detection: rule.DetectionBody{
			Selection: map[string]interface{}{"process.name": "chrome.exe"},
			Condition: "selection",
		},
		Level: rule.LevelHigh,
		Tags:  []string{"process"},
	}
}

func TestMockAdapter_AlwaysSucceeds(t *testing.T) {
	adapter := NewMockAdapter()
	result := adapter.Deploy(context.Background(), testRule(), Target{Name: "t1"})
	assert.True(t, result.Success)
	assert.Equal(t, "mock_R1", result.DeployedRuleID)
}

func TestElasticsearchAdapter_EmptyEndpointIsValidationOnly(t *testing.T) {
	adapter := NewElasticsearchAdapter(NewClient(0))
	assert.True(t, adapter.Probe(context.Background(), Target{Name: "t1"}))

	result := adapter.Deploy(context.Background(), testRule(), Target{Name: "t1"})
	assert.True(t, result.Success)
	assert.Empty(t, result.DeployedRuleID)
	assert.NotEmpty(t, result.ConvertedRule)
}

func TestElasticsearchAdapter_Translate_IncludesFixedTags(t *testing.T) {
	adapter := NewElasticsearchAdapter(NewClient(0))
	converted, err := adapter.Translate(testRule())
	require.NoError(t, err)
	assert.Contains(t, converted, "sigma")
	assert.Contains(t, converted, "cybersentinel")
	assert.Contains(t, converted, "\"risk_score\":73")
}

func TestElasticsearchAdapter_Deploy_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.Header.Get("kbn-xsrf"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	adapter := NewElasticsearchAdapter(NewClient(0))
	target := Target{Name: "t1", Endpoint: server.URL}
	result := adapter.Deploy(context.Background(), testRule(), target)
	assert.True(t, result.Success)
	assert.Equal(t, "R1", result.DeployedRuleID)
}

func TestElasticsearchAdapter_Deploy_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewElasticsearchAdapter(NewClient(0))
	target := Target{Name: "t1", Endpoint: server.URL}
	result := adapter.Deploy(context.Background(), testRule(), target)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestSplunkAdapter_Translate_DefaultsTimeframeAndEnrichesFields(t *testing.T) {
	adapter := NewSplunkAdapter(NewClient(0))
	search, err := adapter.Translate(testRule())
	require.NoError(t, err)
	assert.Contains(t, search, "earliest=-1h")
	assert.Contains(t, search, "rule_id=\"R1\"")
}

func TestSplunkAdapter_Deploy_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewSplunkAdapter(NewClient(0))
	target := Target{Name: "t1", Endpoint: server.URL}
	result := adapter.Deploy(context.Background(), testRule(), target)
	assert.True(t, result.Success)
}

func TestRegistry_LooksUpByEngineType(t *testing.T) {
	reg := NewDefaultRegistry(NewClient(0))

	adapter, ok := reg.Get("mock")
	require.True(t, ok)
	assert.Equal(t, "mock", adapter.EngineType())

	_, ok = reg.Get("qradar")
	assert.False(t, ok)
}
