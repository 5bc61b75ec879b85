//
//  Copyright © Trustline Inc. All rights reserved.
//

package policy

import (
	"os"
	"time"

	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/model"
	"gopkg.in/yaml.v3"
)

// Document is the versioned policy configuration. It is loaded once at
// startup and replaced atomically on reload; the version string is recorded
// in every subsequent audit entry.
type Document struct {
	Metadata       Metadata       `yaml:"metadata"`
	Confidence     Confidence     `yaml:"confidence"`
	Actions        Actions        `yaml:"actions"`
	Escalation     Escalation     `yaml:"escalation"`
	RiskThresholds RiskThresholds `yaml:"risk_thresholds"`
	RateLimits     RateLimits     `yaml:"rate_limits"`
	HumanOverride  HumanOverride  `yaml:"human_override"`
}

// Metadata identifies a policy document revision.
type Metadata struct {
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

// Confidence carries the confidence floors for automated actions.
type Confidence struct {
	MinToAllow    float64 `yaml:"min_to_allow"`
	MinToEscalate float64 `yaml:"min_to_escalate"`
}

// Actions constrains the automated action set.
type Actions struct {
	Allowed                 []model.Action `yaml:"allowed"`
	HumanOnly               []model.Action `yaml:"human_only"`
	MaxActionsPerUserPerDay int            `yaml:"max_actions_per_user_per_day"`
}

// Escalation carries the dispute thresholds.
type Escalation struct {
	DisagreementThreshold    float64 `yaml:"disagreement_threshold"`
	ConsecutiveHighRiskLimit int     `yaml:"consecutive_high_risk_limit"`
}

// RiskThresholds segments risk scores into action bands.
type RiskThresholds struct {
	LowRiskMax            float64 `yaml:"low_risk_max"`
	MediumRiskMax         float64 `yaml:"medium_risk_max"`
	CriticalRiskThreshold float64 `yaml:"critical_risk_threshold"`
}

// RateLimits bounds sliding-window bookkeeping.
type RateLimits struct {
	HighRiskWindow time.Duration `yaml:"high_risk_window"`
}

// UnmarshalYAML accepts Go duration strings such as "1h" or "30m".
func (r *RateLimits) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		HighRiskWindow string `yaml:"high_risk_window"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.HighRiskWindow == "" {
		return nil
	}

	d, err := time.ParseDuration(raw.HighRiskWindow)
	if err != nil {
		return err
	}
	r.HighRiskWindow = d
	return nil
}

// HumanOverride constrains manual override records.
type HumanOverride struct {
	MinReasonLength      int      `yaml:"min_reason_length"`
	AllowedOverrideTypes []string `yaml:"allowed_override_types"`
}

// DefaultDocument returns the built-in policy used when no document is
// configured.
func DefaultDocument() *Document {
	return &Document{
		Metadata: Metadata{Version: "builtin-1"},
		Confidence: Confidence{
			MinToAllow:    0.75,
			MinToEscalate: 0.50,
		},
		Actions: Actions{
			Allowed:                 []model.Action{model.ActionAllow, model.ActionChallenge, model.ActionBlock, model.ActionEscalate},
			HumanOnly:               nil,
			MaxActionsPerUserPerDay: 1000,
		},
		Escalation: Escalation{
			DisagreementThreshold:    0.30,
			ConsecutiveHighRiskLimit: 3,
		},
		RiskThresholds: RiskThresholds{
			LowRiskMax:            0.30,
			MediumRiskMax:         0.60,
			CriticalRiskThreshold: 0.85,
		},
		RateLimits: RateLimits{
			HighRiskWindow: time.Hour,
		},
		HumanOverride: HumanOverride{
			MinReasonLength:      10,
			AllowedOverrideTypes: []string{"APPROVE", "REJECT", "ESCALATE"},
		},
	}
}

// LoadDocument reads and validates a policy document from a YAML file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.WrapError(common.CodeConfig, "policy document unreadable", err)
	}

	doc := DefaultDocument()
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, common.WrapError(common.CodeConfig, "policy document malformed", err)
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks the internal consistency of the document.
func (d *Document) Validate() *common.Error {
	if d.Metadata.Version == "" {
		return common.NewError(common.CodeConfig, "policy metadata.version is required")
	}
	if d.Confidence.MinToAllow < 0 || d.Confidence.MinToAllow > 1 {
		return common.NewError(common.CodeConfig, "confidence.min_to_allow must be in [0,1]")
	}
	if d.Confidence.MinToEscalate < 0 || d.Confidence.MinToEscalate > d.Confidence.MinToAllow {
		return common.NewError(common.CodeConfig, "confidence.min_to_escalate must be in [0, min_to_allow]")
	}
	if len(d.Actions.Allowed) == 0 {
		return common.NewError(common.CodeConfig, "actions.allowed must not be empty")
	}
	t := d.RiskThresholds
	if !(t.LowRiskMax < t.MediumRiskMax && t.MediumRiskMax < t.CriticalRiskThreshold && t.CriticalRiskThreshold <= 1) {
		return common.NewError(common.CodeConfig, "risk_thresholds must be strictly increasing and bounded by 1")
	}
	if d.HumanOverride.MinReasonLength < 10 {
		return common.NewError(common.CodeConfig, "human_override.min_reason_length must be at least 10")
	}
	return nil
}
