//
//  Copyright © Trustline Inc. All rights reserved.
//

package risk

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArtifact lays an artifact directory out under dir. Any of the maps
// may be nil to skip that file.
func writeArtifact(t *testing.T, dir string, meta, mdl, cal interface{}) {
	t.Helper()
	write := func(name string, v interface{}) {
		if v == nil {
			return
		}
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	}
	write(metadataFile, meta)
	write(modelFile, mdl)
	write(calibratorFile, cal)
}

// torTree splits only on the tor feature: margin -2 without tor, +2 with.
func torTree() gbtModel {
	return gbtModel{
		Bias:         0,
		LearningRate: 1,
		Trees: []tree{{
			Nodes: []treeNode{
				{Feature: featTor, Threshold: 0.5, Left: 1, Right: 2, Value: 0},
				{Feature: -1, Left: -1, Right: -1, Value: -2},
				{Feature: -1, Left: -1, Right: -1, Value: 2},
			},
		}},
	}
}

func validMeta(calibrated bool) Metadata {
	return Metadata{
		ModelType:     "gradient_boosted_trees",
		FeatureNames:  FeatureNames,
		HasCalibrator: calibrated,
	}
}

func TestLoadArtifactRejections(t *testing.T) {
	tests := []struct {
		name string
		meta interface{}
		mdl  interface{}
		cal  interface{}
	}{
		{
			name: "missing metadata",
			mdl:  torTree(),
		},
		{
			name: "wrong feature count",
			meta: Metadata{ModelType: "gbt", FeatureNames: []string{"a", "b"}},
			mdl:  torTree(),
		},
		{
			name: "feature name mismatch",
			meta: func() Metadata {
				m := validMeta(false)
				names := append([]string(nil), FeatureNames...)
				names[0], names[1] = names[1], names[0]
				m.FeatureNames = names
				return m
			}(),
			mdl: torTree(),
		},
		{
			name: "no trees",
			meta: validMeta(false),
			mdl:  gbtModel{Bias: 0.1},
		},
		{
			name: "calibrator promised but missing",
			meta: validMeta(true),
			mdl:  torTree(),
		},
		{
			name: "calibrator malformed",
			meta: validMeta(true),
			mdl:  torTree(),
			cal:  isotonic{X: []float64{0, 1}, Y: []float64{0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeArtifact(t, dir, tt.meta, tt.mdl, tt.cal)
			_, err := LoadArtifact(dir)
			assert.Error(t, err)
		})
	}
}

func TestArtifactScore(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, validMeta(false), torTree(), nil)

	a, err := LoadArtifact(dir)
	require.NoError(t, err)

	login, session, device := baselineLogin()

	// Without tor the single tree lands on the -2 leaf.
	eval := a.Score(Features(login, session, device))
	assert.InDelta(t, 0.1192, eval.RiskScore, 1e-3)
	assert.Empty(t, eval.RiskFactors)

	// With tor the path delta +2 is credited to the tor feature.
	session.IsTor = true
	eval = a.Score(Features(login, session, device))
	assert.InDelta(t, 0.8808, eval.RiskScore, 1e-3)
	assert.Equal(t, []string{"tor"}, eval.RiskFactors)
}

func TestArtifactCalibration(t *testing.T) {
	dir := t.TempDir()
	// A squashing calibrator: everything above 0.5 maps into [0.5, 0.6].
	cal := isotonic{
		X: []float64{0, 0.5, 1},
		Y: []float64{0, 0.5, 0.6},
	}
	writeArtifact(t, dir, validMeta(true), torTree(), cal)

	a, err := LoadArtifact(dir)
	require.NoError(t, err)

	login, session, device := baselineLogin()
	session.IsTor = true

	eval := a.Score(Features(login, session, device))
	// sigmoid(2) ≈ 0.8808 interpolates to 0.5 + 0.3808/0.5 * 0.1
	assert.InDelta(t, 0.5762, eval.RiskScore, 1e-3)
}

func TestModelEvaluatorFallback(t *testing.T) {
	dir := t.TempDir()
	// A tree referencing a feature outside the schema panics at predict
	// time; with fallback enabled the heuristic result must stand in.
	broken := gbtModel{
		LearningRate: 1,
		Trees: []tree{{
			Nodes: []treeNode{
				{Feature: 99, Threshold: 0.5, Left: 1, Right: 2},
				{Feature: -1, Left: -1, Right: -1, Value: -1},
				{Feature: -1, Left: -1, Right: -1, Value: 1},
			},
		}},
	}
	writeArtifact(t, dir, validMeta(false), broken, nil)

	e, err := NewModelEvaluator(dir, true)
	require.NoError(t, err)
	assert.Equal(t, ModeModel, e.Mode())

	login, session, device := baselineLogin()
	session.IsTor = true

	eval, err := e.Evaluate(login, session, device)
	require.NoError(t, err)
	assert.InDelta(t, weightTor, eval.RiskScore, 1e-9)
	assert.Equal(t, []string{"tor_detected"}, eval.RiskFactors)

	// Without fallback the same inference failure surfaces as an error.
	strict, err := NewModelEvaluator(dir, false)
	require.NoError(t, err)
	_, err = strict.Evaluate(login, session, device)
	assert.Error(t, err)
}
