//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package explain renders the evaluator outputs into a human-readable
// explanation plus a recommended action label.
//
// The builder runs as the final serial phase of the pipeline, after the
// confidence calibrator, and is the only component that sees every
// upstream output at once. Its text is the sole narrative the caller
// receives; internal scores and tags are paraphrased, never dumped.
package explain

import (
	"fmt"
	"strings"

	"github.com/trustline/authguard/pkg/core/model"
)

// Explanation is the phase-3 artifact: the narrative and the action label
// the decision flow proposes to the policy engine.
type Explanation struct {
	RecommendedAction string
	Text              string
}

// Risk bands used for narration and the recommended action. They mirror
// the default policy thresholds; the policy engine re-checks the proposal
// against its own (possibly reloaded) document.
const (
	lowRiskMax      = 0.30
	mediumRiskMax   = 0.60
	criticalRiskMin = 0.85
)

// phrases maps factor and deviation tags to natural-language fragments.
// Unknown tags fall through verbatim so new upstream tags degrade readably.
var phrases = map[string]string{
	"new_device":                    "a new device",
	"unknown_device":                "an unrecognized device",
	"new_ip":                        "a new IP address",
	"new_location":                  "a new location",
	"failed_attempts":               "recent failed attempts",
	"vpn_detected":                  "a VPN connection",
	"tor_detected":                  "a Tor exit node",
	"long_absence":                  "a long absence since the last login",
	"unusual_login_time":            "an unusual login time",
	"unusual_login_day":             "an unusual day of week",
	"unusual_device_type":           "an unusual device type",
	"unusual_auth_method":           "an unusual authentication method",
	"unusual_location":              "an unusual location",
	"vpn_usage_change":              "a change in VPN usage",
	"tor_usage_change":              "a change in Tor usage",
	"unusual_login_gap":             "an unusual gap between logins",
	"new_user_no_baseline":          "no behavioral baseline yet",
	"ip_shared_across_accounts":     "an IP shared across many accounts",
	"device_shared_across_accounts": "a device shared across accounts",
	"datacenter_ip":                 "a datacenter IP",
	"known_proxy_range":             "a known proxy range",
	"risky_cluster_membership":      "membership in a risky infrastructure cluster",
	"vpn_or_proxy_detected":         "a VPN or proxy",
	"tor_exit_node_detected":        "a Tor exit node",
}

func phrase(tag string) string {
	if p, ok := phrases[tag]; ok {
		return p
	}
	return tag
}

func joinPhrases(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, phrase(t))
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

// Builder renders explanations. It is stateless and safe for concurrent use.
type Builder struct{}

// NewBuilder creates an explanation builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func riskBand(score float64) string {
	switch {
	case score <= lowRiskMax:
		return "low"
	case score <= mediumRiskMax:
		return "moderate"
	case score < criticalRiskMin:
		return "high"
	default:
		return "critical"
	}
}

func recommend(score float64) model.Action {
	switch {
	case score <= lowRiskMax:
		return model.ActionAllow
	case score <= mediumRiskMax:
		return model.ActionChallenge
	case score < criticalRiskMin:
		return model.ActionBlock
	default:
		return model.ActionEscalate
	}
}

// Build composes the phase-3 explanation from all prior outputs.
func (b *Builder) Build(risk model.RiskEvaluation, behavior model.BehaviorEvaluation, network model.NetworkEvaluation, verdict model.ConfidenceVerdict) (Explanation, error) {
	var sb strings.Builder

	band := riskBand(risk.RiskScore)
	sb.WriteString(fmt.Sprintf("This login was assessed as %s risk.", band))

	if len(risk.RiskFactors) > 0 {
		sb.WriteString(fmt.Sprintf(" The assessment was driven by %s.", joinPhrases(risk.RiskFactors)))
	} else {
		sb.WriteString(" No individual risk factors stood out.")
	}

	switch {
	case len(behavior.Deviations) == 1 && behavior.Deviations[0] == "new_user_no_baseline":
		sb.WriteString(" The account has no behavioral baseline yet, so typical-usage checks were not applied.")
	case behavior.MatchScore >= 0.8:
		sb.WriteString(" The session closely matches the account's usual behavior.")
	case len(behavior.Deviations) > 0:
		sb.WriteString(fmt.Sprintf(" The session departs from the account's usual behavior, showing %s.", joinPhrases(behavior.Deviations)))
	default:
		sb.WriteString(" The session partially matches the account's usual behavior.")
	}

	if len(network.Evidence) > 0 {
		sb.WriteString(fmt.Sprintf(" Network evidence noted %s.", joinPhrases(network.Evidence)))
	}

	if verdict.Permission == model.PermissionHumanRequired {
		sb.WriteString(" The system's confidence was not sufficient to act automatically.")
	}

	return Explanation{
		RecommendedAction: string(recommend(risk.RiskScore)),
		Text:              sb.String(),
	}, nil
}

// MapAction maps an explanation's recommended action label onto the
// four-action enum; unknown labels default to CHALLENGE.
func MapAction(label string) model.Action {
	switch model.Action(label) {
	case model.ActionAllow, model.ActionChallenge, model.ActionBlock, model.ActionEscalate:
		return model.Action(label)
	default:
		return model.ActionChallenge
	}
}
