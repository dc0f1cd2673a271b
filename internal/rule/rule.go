// Package rule defines the structured detection-rule document the core
// reads, mutates, and writes back through the rule-repository collaborator.
// It never creates rules from scratch.
package rule

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Level is the rule severity level.
type Level string

const (
	LevelInformational Level = "informational"
	LevelLow            Level = "low"
	LevelMedium         Level = "medium"
	LevelHigh           Level = "high"
	LevelCritical       Level = "critical"
)

// DetectionBody is the `detection` block of a rule document: named
// selections and a condition expression over them.
type DetectionBody struct {
	Selection map[string]interface{} `yaml:"selection"`
	Condition string                 `yaml:"condition"`
	Timeframe string                 `yaml:"timeframe,omitempty"`
}

// Rule is a structured detection rule, referenced and mutated by the core
// but owned by the upstream rule repository collaborator.
type Rule struct {
	RuleID           string          `yaml:"id"`
	Title            string          `yaml:"title"`
	Detection        DetectionBody   `yaml:"detection"`
	Level            Level           `yaml:"level"`
	Tags             []string        `yaml:"tags,omitempty"`
	FalsePositives   []string        `yaml:"falsepositives,omitempty"`
	References       []string        `yaml:"references,omitempty"`
	Author           string          `yaml:"author,omitempty"`
	SourceIncident   string          `yaml:"source_incident,omitempty"`
	GeneratedAt      time.Time       `yaml:"generated_at,omitempty"`
	IncidentSeverity string          `yaml:"incident_severity,omitempty"`
	Disabled         bool            `yaml:"disabled,omitempty"`
}

// Validate reports whether the rule body is well-formed: it must contain
// at least one selection field and a non-empty condition.
func (r *Rule) Validate() error {
	if r.RuleID == "" {
		return fmt.Errorf("rule: missing id")
	}
	if len(r.Detection.Selection) == 0 {
		return fmt.Errorf("rule %s: detection.selection must have at least one field", r.RuleID)
	}
	if r.Detection.Condition == "" {
		return fmt.Errorf("rule %s: detection.condition must not be empty", r.RuleID)
	}
	return nil
}

// Clone returns a deep copy of the rule, used by the tuning optimizer so
// mutations never touch the caller's rule in place (spec.md §9 design note).
func (r *Rule) Clone() *Rule {
	clone := *r
	clone.Detection.Selection = make(map[string]interface{}, len(r.Detection.Selection))
	for k, v := range r.Detection.Selection {
		switch list := v.(type) {
		case []interface{}:
			v = append([]interface{}(nil), list...)
		case []string:
			v = append([]string(nil), list...)
		}
		clone.Detection.Selection[k] = v
	}
	clone.Tags = append([]string(nil), r.Tags...)
	clone.FalsePositives = append([]string(nil), r.FalsePositives...)
	clone.References = append([]string(nil), r.References...)
	return &clone
}

// ParseYAML parses a YAML-encoded rule document.
func ParseYAML(data []byte) (*Rule, error) {
	var r Rule
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rule body: %w", err)
	}
	return &r, nil
}

// ToYAML serializes the rule back to its YAML document form.
func (r *Rule) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("serialize rule body: %w", err)
	}
	return data, nil
}

// RiskScore maps a Level to the fixed Elastic risk_score table
// (spec.md §4.1): informational/low→25, medium→47, high→73, critical→99.
func (l Level) RiskScore() int {
	switch l {
	case LevelMedium:
		return 47
	case LevelHigh:
		return 73
	case LevelCritical:
		return 99
	default:
		return 25
	}
}

// ElasticSeverity maps a Level to the Elastic severity string.
func (l Level) ElasticSeverity() string {
	switch l {
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "low"
	}
}
