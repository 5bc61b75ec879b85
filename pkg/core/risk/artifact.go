//
//  Copyright © Trustline Inc. All rights reserved.
//

package risk

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/model"
)

// Artifact file names within a model directory.
const (
	metadataFile   = "metadata.json"
	modelFile      = "model.json"
	calibratorFile = "calibrator.json"
)

// attributionFloor is the minimum positive per-feature attribution for a
// feature to be emitted as a risk factor.
const attributionFloor = 0.02

// maxModelFactors caps the number of emitted risk factors on the model path.
const maxModelFactors = 5

// Metadata describes a serialized model artifact.
type Metadata struct {
	ModelType     string                 `json:"model_type"`
	FeatureNames  []string               `json:"feature_names"`
	HasCalibrator bool                   `json:"has_calibrator"`
	ModelParams   map[string]interface{} `json:"model_params"`
}

// treeNode is one node of a regression tree. Leaf nodes have Left == -1.
// Value is the expected output at the node, which supports path-delta
// attribution.
type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

// gbtModel is a serialized gradient-boosted tree ensemble. The raw ensemble
// output is a log-odds margin mapped through a sigmoid.
type gbtModel struct {
	Bias         float64 `json:"bias"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []tree  `json:"trees"`
}

// isotonic is a monotone piecewise-linear calibrator fitted offline. X must
// be strictly increasing.
type isotonic struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Artifact is a loaded model ready for inference. Predictions are
// read-only tree walks and may be called concurrently.
type Artifact struct {
	meta       Metadata
	model      gbtModel
	calibrator *isotonic
}

// LoadArtifact loads and verifies a model artifact directory. Artifacts
// whose feature list disagrees with the expected 14-feature schema are
// rejected.
func LoadArtifact(dir string) (*Artifact, error) {
	var meta Metadata
	if err := readJSON(filepath.Join(dir, metadataFile), &meta); err != nil {
		return nil, common.WrapError(common.CodeConfig, "model metadata unreadable", err)
	}

	if len(meta.FeatureNames) != FeatureCount {
		return nil, common.NewErrorf(common.CodeConfig,
			"model artifact declares %d features, expected %d", len(meta.FeatureNames), FeatureCount)
	}
	for i, name := range meta.FeatureNames {
		if name != FeatureNames[i] {
			return nil, common.NewErrorf(common.CodeConfig,
				"model feature %d is %q, expected %q", i, name, FeatureNames[i])
		}
	}

	a := &Artifact{meta: meta}
	if err := readJSON(filepath.Join(dir, modelFile), &a.model); err != nil {
		return nil, common.WrapError(common.CodeConfig, "model artifact unreadable", err)
	}
	if len(a.model.Trees) == 0 {
		return nil, common.NewError(common.CodeConfig, "model artifact has no trees")
	}
	if a.model.LearningRate == 0 {
		a.model.LearningRate = 1
	}

	if meta.HasCalibrator {
		cal := &isotonic{}
		if err := readJSON(filepath.Join(dir, calibratorFile), cal); err != nil {
			return nil, common.WrapError(common.CodeConfig, "model calibrator unreadable", err)
		}
		if len(cal.X) < 2 || len(cal.X) != len(cal.Y) {
			return nil, common.NewError(common.CodeConfig, "model calibrator is malformed")
		}
		a.calibrator = cal
	}

	return a, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	return nil
}

// Metadata returns the artifact metadata.
func (a *Artifact) Metadata() Metadata {
	return a.meta
}

// predict walks each tree, accumulating the margin and the per-feature
// path-delta attributions (the change in node expectation at each split is
// credited to the split feature).
func (a *Artifact) predict(features []float64) (float64, []float64) {
	margin := a.model.Bias
	attr := make([]float64, FeatureCount)

	for _, t := range a.model.Trees {
		if len(t.Nodes) == 0 {
			continue
		}
		idx := 0
		for {
			node := t.Nodes[idx]
			if node.Left < 0 {
				margin += a.model.LearningRate * node.Value
				break
			}
			var next int
			if features[node.Feature] <= node.Threshold {
				next = node.Left
			} else {
				next = node.Right
			}
			delta := t.Nodes[next].Value - node.Value
			if node.Feature >= 0 && node.Feature < FeatureCount {
				attr[node.Feature] += a.model.LearningRate * delta
			}
			idx = next
		}
	}

	return margin, attr
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// calibrate maps a probability through the isotonic calibrator, clamping
// outside the fitted range.
func (c *isotonic) calibrate(p float64) float64 {
	n := len(c.X)
	if p <= c.X[0] {
		return c.Y[0]
	}
	if p >= c.X[n-1] {
		return c.Y[n-1]
	}
	i := sort.SearchFloat64s(c.X, p)
	// p lies in (X[i-1], X[i]]; interpolate linearly.
	x0, x1 := c.X[i-1], c.X[i]
	y0, y1 := c.Y[i-1], c.Y[i]
	return y0 + (y1-y0)*(p-x0)/(x1-x0)
}

// Score predicts a calibrated risk probability with per-feature
// attribution tags: positive contributors above the attribution floor,
// ordered by magnitude, capped at maxModelFactors. Equal attributions
// appear in feature-vector order.
func (a *Artifact) Score(features []float64) model.RiskEvaluation {
	margin, attr := a.predict(features)

	p := sigmoid(margin)
	if a.calibrator != nil {
		p = c01(a.calibrator.calibrate(p))
	}

	type contributor struct {
		index int
		value float64
	}
	var positive []contributor
	for i, v := range attr {
		if v > attributionFloor {
			positive = append(positive, contributor{i, v})
		}
	}
	sort.SliceStable(positive, func(i, j int) bool {
		if positive[i].value != positive[j].value {
			return positive[i].value > positive[j].value
		}
		return positive[i].index < positive[j].index
	})
	if len(positive) > maxModelFactors {
		positive = positive[:maxModelFactors]
	}

	tags := make([]string, 0, len(positive))
	for _, c := range positive {
		tags = append(tags, FeatureNames[c.index])
	}

	return model.RiskEvaluation{
		RiskScore:   p,
		RiskFactors: tags,
	}
}

func c01(v float64) float64 {
	return common.Clamp01(v)
}
