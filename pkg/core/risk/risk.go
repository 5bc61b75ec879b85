//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package risk converts login features into a calibrated risk probability
// with per-feature attribution.
//
// The evaluator runs in one of two modes, selected once at construction and
// sticky for the process lifetime: a gradient-boosted-tree scorer when a
// model artifact is loaded, or a deterministic additive heuristic otherwise.
// The active mode is observable via [Evaluator.Mode] and reported in health
// telemetry.
package risk

import (
	"fmt"

	"github.com/trustline/authguard/internal/logging"
	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/model"
)

var logger = logging.GetLogger("authguard.risk")

const agent = "risk"

// Mode identifies the active scoring path.
type Mode string

// Scoring modes.
const (
	ModeHeuristic Mode = "heuristic"
	ModeModel     Mode = "model"
)

// Evaluator scores authentication events. It is stateless across requests
// and safe for concurrent use.
type Evaluator struct {
	artifact *Artifact
	fallback bool
}

// NewEvaluator creates a heuristic-mode evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// NewModelEvaluator creates a model-mode evaluator from an artifact
// directory. When fallback is true, an inference failure falls back to the
// heuristic path instead of failing the evaluation.
func NewModelEvaluator(dir string, fallback bool) (*Evaluator, error) {
	artifact, err := LoadArtifact(dir)
	if err != nil {
		return nil, err
	}

	logger.Infof(agent, "init", "loaded model artifact from %s (type=%s, calibrated=%v)",
		dir, artifact.Metadata().ModelType, artifact.Metadata().HasCalibrator)

	return &Evaluator{artifact: artifact, fallback: fallback}, nil
}

// Mode returns the sticky scoring mode.
func (e *Evaluator) Mode() Mode {
	if e.artifact != nil {
		return ModeModel
	}
	return ModeHeuristic
}

// Evaluate produces a RiskEvaluation for the login. The evaluator observes
// only the login event, session, and device; it never sees other agents'
// outputs.
func (e *Evaluator) Evaluate(login *model.LoginEvent, session *model.Session, device *model.Device) (model.RiskEvaluation, error) {
	features := Features(login, session, device)

	if e.artifact == nil {
		return heuristicScore(features), nil
	}

	eval, err := e.scoreModel(features)
	if err != nil {
		if e.fallback {
			logger.Warnf(agent, "evaluate", "model inference failed, using heuristic: %+v", err)
			return heuristicScore(features), nil
		}
		return model.RiskEvaluation{}, common.WrapError(common.CodeModel, "risk model inference failed", err)
	}

	return eval, nil
}

// scoreModel isolates the model call so a panicking predictor surfaces as
// an inference error rather than taking down the request.
func (e *Evaluator) scoreModel(features []float64) (eval model.RiskEvaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panic: %v", r)
		}
	}()

	eval = e.artifact.Score(features)
	return eval, nil
}
