//
//  Copyright © Trustline Inc. All rights reserved.
//

package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustline/authguard/pkg/core/model"
)

func TestBuildNarrative(t *testing.T) {
	b := NewBuilder()

	t.Run("quiet login", func(t *testing.T) {
		e, err := b.Build(
			model.RiskEvaluation{RiskScore: 0.05},
			model.BehaviorEvaluation{MatchScore: 0.92},
			model.NetworkEvaluation{},
			model.ConfidenceVerdict{Permission: model.PermissionAIAllowed},
		)
		require.NoError(t, err)
		assert.Equal(t, "ALLOW", e.RecommendedAction)
		assert.Contains(t, e.Text, "low risk")
		assert.Contains(t, e.Text, "No individual risk factors stood out.")
		assert.Contains(t, e.Text, "closely matches the account's usual behavior")
		assert.NotContains(t, e.Text, "Network evidence")
	})

	t.Run("risky login paraphrases tags", func(t *testing.T) {
		e, err := b.Build(
			model.RiskEvaluation{RiskScore: 0.7, RiskFactors: []string{"new_device", "new_location", "tor_detected"}},
			model.BehaviorEvaluation{MatchScore: 0.3, Deviations: []string{"unusual_login_time", "unusual_location"}},
			model.NetworkEvaluation{NetworkRisk: 0.4, Evidence: []string{"tor_exit_node_detected"}},
			model.ConfidenceVerdict{Permission: model.PermissionHumanRequired},
		)
		require.NoError(t, err)
		assert.Equal(t, "BLOCK", e.RecommendedAction)
		assert.Contains(t, e.Text, "high risk")
		assert.Contains(t, e.Text, "a new device, a new location and a Tor exit node")
		assert.Contains(t, e.Text, "an unusual login time and an unusual location")
		assert.Contains(t, e.Text, "Network evidence noted a Tor exit node.")
		assert.Contains(t, e.Text, "confidence was not sufficient")
		// Raw tags never leak into the narrative.
		assert.NotContains(t, e.Text, "tor_detected")
		assert.NotContains(t, e.Text, "unusual_login_time")
	})

	t.Run("new user without baseline", func(t *testing.T) {
		e, err := b.Build(
			model.RiskEvaluation{RiskScore: 0.1},
			model.BehaviorEvaluation{MatchScore: 0.9, Deviations: []string{"new_user_no_baseline"}},
			model.NetworkEvaluation{},
			model.ConfidenceVerdict{Permission: model.PermissionAIAllowed},
		)
		require.NoError(t, err)
		assert.Contains(t, e.Text, "no behavioral baseline yet")
		assert.Contains(t, e.Text, "typical-usage checks were not applied")
	})

	t.Run("unknown tag degrades verbatim", func(t *testing.T) {
		e, err := b.Build(
			model.RiskEvaluation{RiskScore: 0.5, RiskFactors: []string{"weird_new_signal"}},
			model.BehaviorEvaluation{MatchScore: 0.9},
			model.NetworkEvaluation{},
			model.ConfidenceVerdict{Permission: model.PermissionAIAllowed},
		)
		require.NoError(t, err)
		assert.Contains(t, e.Text, "weird_new_signal")
	})
}

func TestRecommendedActionBands(t *testing.T) {
	b := NewBuilder()
	tests := []struct {
		score  float64
		action string
	}{
		{0.0, "ALLOW"},
		{0.30, "ALLOW"},
		{0.31, "CHALLENGE"},
		{0.60, "CHALLENGE"},
		{0.61, "BLOCK"},
		{0.84, "BLOCK"},
		{0.85, "ESCALATE"},
		{1.0, "ESCALATE"},
	}
	for _, tt := range tests {
		e, err := b.Build(
			model.RiskEvaluation{RiskScore: tt.score},
			model.BehaviorEvaluation{MatchScore: 1},
			model.NetworkEvaluation{},
			model.ConfidenceVerdict{},
		)
		require.NoError(t, err)
		assert.Equal(t, tt.action, e.RecommendedAction, "score %v", tt.score)
	}
}

func TestMapAction(t *testing.T) {
	assert.Equal(t, model.ActionAllow, MapAction("ALLOW"))
	assert.Equal(t, model.ActionBlock, MapAction("BLOCK"))
	assert.Equal(t, model.ActionEscalate, MapAction("ESCALATE"))
	// Unknown labels are conservative, never permissive.
	assert.Equal(t, model.ActionChallenge, MapAction("PROMOTE"))
	assert.Equal(t, model.ActionChallenge, MapAction(""))
}
