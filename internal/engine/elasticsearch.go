package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cybersentinel/detection-loop/internal/rule"
)

// ElasticsearchAdapter translates rules into Elastic Security detection
// rules and pushes them through the detection engine rules API. Grounded
// on ElasticsearchAdapter in
// _examples/original_source/detection/rule_deployment.py.
type ElasticsearchAdapter struct {
	client *Client
}

// NewElasticsearchAdapter constructs an ElasticsearchAdapter.
func NewElasticsearchAdapter(client *Client) *ElasticsearchAdapter {
	return &ElasticsearchAdapter{client: client}
}

// EngineType implements Adapter.
func (a *ElasticsearchAdapter) EngineType() string { return "elasticsearch" }

type elasticRule struct {
	RuleID         string   `json:"rule_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Severity       string   `json:"severity"`
	RiskScore      int      `json:"risk_score"`
	Query          string   `json:"query"`
	Language       string   `json:"language"`
	Type           string   `json:"type"`
	Enabled        bool     `json:"enabled"`
	Interval       string   `json:"interval"`
	Tags           []string `json:"tags"`
	References     []string `json:"references,omitempty"`
	FalsePositives []string `json:"false_positives,omitempty"`
	Author         string   `json:"author,omitempty"`
}

// Translate builds an Elastic Security rule envelope: each selection
// field/value becomes a boolean-must clause ([]interface{} -> terms
// match, a string containing "*" -> wildcard match, other strings ->
// exact term match), joined into a kuery query string.
func (a *ElasticsearchAdapter) Translate(r *rule.Rule) (string, error) {
	query := buildKueryQuery(r.Detection.Selection)

	tags := append([]string(nil), r.Tags...)
	tags = appendUnique(tags, "sigma", "cybersentinel")

	er := elasticRule{
		RuleID:         r.RuleID,
		Name:           r.Title,
		Description:    r.Title,
		Severity:       r.Level.ElasticSeverity(),
		RiskScore:      r.Level.RiskScore(),
		Query:          query,
		Language:       "kuery",
		Type:           "query",
		Enabled:        true,
		Interval:       "5m",
		Tags:           tags,
		References:     r.References,
		FalsePositives: r.FalsePositives,
		Author:         r.Author,
	}

	data, err := json.Marshal(er)
	if err != nil {
		return "", fmt.Errorf("translate rule %s: %w", r.RuleID, err)
	}
	return string(data), nil
}

// buildKueryQuery joins each selection field/value into a kuery clause,
// AND-joined. Lists become an OR-group of terms matches; strings
// containing "*" become wildcard matches; everything else is an exact
// term match.
func buildKueryQuery(selection map[string]interface{}) string {
	fields := make([]string, 0, len(selection))
	for field := range selection {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	for _, field := range fields {
		clauses = append(clauses, buildKueryClause(field, selection[field]))
	}
	return strings.Join(clauses, " and ")
}

func buildKueryClause(field string, value interface{}) string {
	switch v := value.(type) {
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%s:%q", field, fmt.Sprint(item)))
		}
		return "(" + strings.Join(parts, " or ") + ")"
	case []string:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%s:%q", field, item))
		}
		return "(" + strings.Join(parts, " or ") + ")"
	case string:
		if strings.Contains(v, "*") {
			return fmt.Sprintf("%s:%s", field, v)
		}
		return fmt.Sprintf("%s:%q", field, v)
	default:
		return fmt.Sprintf("%s:%v", field, v)
	}
}

func appendUnique(tags []string, add ...string) []string {
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		seen[t] = struct{}{}
	}
	for _, a := range add {
		if _, ok := seen[a]; !ok {
			tags = append(tags, a)
			seen[a] = struct{}{}
		}
	}
	return tags
}

// Probe checks {endpoint}/_cluster/health. An empty endpoint means
// dry-run and always succeeds.
func (a *ElasticsearchAdapter) Probe(ctx context.Context, target Target) bool {
	if target.Endpoint == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.Endpoint+"/_cluster/health", nil)
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

// Deploy pushes the translated rule to POST {endpoint}/api/detection_engine/rules
// with header kbn-xsrf: true and basic auth. HTTP 200/201 is success.
func (a *ElasticsearchAdapter) Deploy(ctx context.Context, r *rule.Rule, target Target) DeploymentResult {
	converted, err := a.Translate(r)
	if err != nil {
		return DeploymentResult{
			RuleID: r.RuleID, TargetName: target.Name,
			Success: false, DeploymentTime: time.Now(), ErrorMessage: err.Error(),
		}
	}

	if target.Endpoint == "" {
		return DeploymentResult{
			RuleID: r.RuleID, TargetName: target.Name,
			Success: true, DeploymentTime: time.Now(), ConvertedRule: converted,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, DeployTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		target.Endpoint+"/api/detection_engine/rules", strings.NewReader(converted))
	if err != nil {
		return DeploymentResult{
			RuleID: r.RuleID, TargetName: target.Name,
			Success: false, DeploymentTime: time.Now(), ErrorMessage: err.Error(),
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("kbn-xsrf", "true")
	if target.Username != "" {
		req.SetBasicAuth(target.Username, target.Password)
	}

	_ = a.client.Limiter().Wait(ctx)
	resp, err := a.client.HTTP.Do(req)
	if err != nil {
		return DeploymentResult{
			RuleID: r.RuleID, TargetName: target.Name,
			Success: false, DeploymentTime: time.Now(), ErrorMessage: err.Error(), ConvertedRule: converted,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return DeploymentResult{
			RuleID: r.RuleID, TargetName: target.Name,
			Success: false, DeploymentTime: time.Now(),
			ErrorMessage:  fmt.Sprintf("elasticsearch deploy returned status %d", resp.StatusCode),
			ConvertedRule: converted,
		}
	}

	return DeploymentResult{
		RuleID: r.RuleID, TargetName: target.Name,
		Success: true, DeployedRuleID: r.RuleID, DeploymentTime: time.Now(), ConvertedRule: converted,
	}
}
