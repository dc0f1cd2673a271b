package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cybersentinel/detection-loop/internal/rule"
)

// SplunkAdapter translates rules into SPL saved searches and pushes them
// through the saved-searches REST endpoint. Grounded on SplunkAdapter in
// _examples/original_source/detection/rule_deployment.py.
type SplunkAdapter struct {
	client *Client
}

// NewSplunkAdapter constructs a SplunkAdapter.
func NewSplunkAdapter(client *Client) *SplunkAdapter {
	return &SplunkAdapter{client: client}
}

// EngineType implements Adapter.
func (a *SplunkAdapter) EngineType() string { return "splunk" }

// Translate builds an SPL search string: clauses AND-joined, lists
// OR-grouped, wrapped with a lookback derived from Timeframe (default
// "1h"), and enriched with rule_id/rule_title/severity eval fields.
func (a *SplunkAdapter) Translate(r *rule.Rule) (string, error) {
	fields := make([]string, 0, len(r.Detection.Selection))
	for field := range r.Detection.Selection {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	for _, field := range fields {
		clauses = append(clauses, buildSPLClause(field, r.Detection.Selection[field]))
	}

	timeframe := r.Detection.Timeframe
	if timeframe == "" {
		timeframe = "1h"
	}

	search := fmt.Sprintf("search earliest=-%s %s", timeframe, strings.Join(clauses, " AND "))
	search += fmt.Sprintf(" | eval rule_id=%q rule_title=%q severity=%q",
		r.RuleID, r.Title, r.Level.ElasticSeverity())

	return search, nil
}

func buildSPLClause(field string, value interface{}) string {
	switch v := value.(type) {
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%s=%q", field, fmt.Sprint(item)))
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	case []string:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%s=%q", field, item))
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	default:
		return fmt.Sprintf("%s=%q", field, fmt.Sprint(v))
	}
}

// Probe checks {endpoint}/services/server/info.
func (a *SplunkAdapter) Probe(ctx context.Context, target Target) bool {
	if target.Endpoint == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.Endpoint+"/services/server/info", nil)
	if err != nil {
		return false
	}
	if target.Username != "" {
		req.SetBasicAuth(target.Username, target.Password)
	}

	_ = a.client.Limiter().Wait(ctx)
	resp, err := a.client.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Deploy posts a form-encoded saved search to
// POST {endpoint}/services/saved/searches.
func (a *SplunkAdapter) Deploy(ctx context.Context, r *rule.Rule, target Target) DeploymentResult {
	search, err := a.Translate(r)
	if err != nil {
		return DeploymentResult{
			RuleID: r.RuleID, TargetName: target.Name,
			Success: false, DeploymentTime: time.Now(), ErrorMessage: err.Error(),
		}
	}

	if target.Endpoint == "" {
		return DeploymentResult{
			RuleID: r.RuleID, TargetName: target.Name,
			Success: true, DeploymentTime: time.Now(), ConvertedRule: search,
		}
	}

	form := url.Values{}
	form.Set("name", r.RuleID)
	form.Set("search", search)

	ctx, cancel := context.WithTimeout(ctx, DeployTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		target.Endpoint+"/services/saved/searches", strings.NewReader(form.Encode()))
	if err != nil {
		return DeploymentResult{
			RuleID: r.RuleID, TargetName: target.Name,
			Success: false, DeploymentTime: time.Now(), ErrorMessage: err.Error(),
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if target.Username != "" {
		req.SetBasicAuth(target.Username, target.Password)
	}

	_ = a.client.Limiter().Wait(ctx)
	resp, err := a.client.HTTP.Do(req)
	if err != nil {
		return DeploymentResult{
			RuleID: r.RuleID, TargetName: target.Name,
			Success: false, DeploymentTime: time.Now(), ErrorMessage: err.Error(), ConvertedRule: search,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return DeploymentResult{
			RuleID: r.RuleID, TargetName: target.Name,
			Success: false, DeploymentTime: time.Now(),
			ErrorMessage:  fmt.Sprintf("splunk deploy returned status %d", resp.StatusCode),
			ConvertedRule: search,
		}
	}

	return DeploymentResult{
		RuleID: r.RuleID, TargetName: target.Name,
		Success: true, DeployedRuleID: r.RuleID, DeploymentTime: time.Now(), ConvertedRule: search,
	}
}
