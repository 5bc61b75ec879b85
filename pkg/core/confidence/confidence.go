//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package confidence adjusts the raw agent confidence for overconfidence,
// disagreement, and missing evidence, and gates whether the system is
// allowed to decide at all.
//
// The calibration pipeline is deterministic and its order of operations is
// fixed: two runs over identical inputs produce bit-identical outputs.
package confidence

import (
	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/model"
)

// Calibration constants. These are part of the engine's observable
// contract; changing one changes every decision downstream.
const (
	overconfidenceKnee     = 0.92
	overconfidenceSlope    = 0.4
	lowDisagreement        = 0.15
	moderateDisagreement   = 0.25
	highDisagreement       = 0.40
	highDisagreementBase   = 0.20
	disagreementSlope      = 0.4
	agreementBoost         = 0.05
	noRiskFactorPenalty    = 0.08
	noNetworkPenalty       = 0.05
	behaviorTensionPenalty = 0.06
	nudgeThreshold         = 0.65
	nudgeSlope             = 0.15

	minAIConfidence   = 0.75
	maxAIDisagreement = 0.30
)

// Calibrator computes confidence verdicts. It is stateless; drift tracking
// lives in [Monitor].
type Calibrator struct{}

// NewCalibrator creates a calibrator.
func NewCalibrator() *Calibrator {
	return &Calibrator{}
}

// Disagreement summarizes the dispersion across the three evaluator scores
// as the spread between the largest and smallest, treating behavior as
// 1 - match_score. The result is in [0,1].
func Disagreement(risk model.RiskEvaluation, behavior model.BehaviorEvaluation, network model.NetworkEvaluation) float64 {
	scores := [3]float64{risk.RiskScore, 1 - behavior.MatchScore, network.NetworkRisk}

	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return hi - lo
}

// Calibrate runs the calibration pipeline over the three evaluator outputs
// and produces the verdict gating AI versus human decision authority.
func (c *Calibrator) Calibrate(risk model.RiskEvaluation, behavior model.BehaviorEvaluation, network model.NetworkEvaluation) model.ConfidenceVerdict {
	scores := [3]float64{risk.RiskScore, 1 - behavior.MatchScore, network.NetworkRisk}

	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	disagreement := hi - lo

	// The raw confidence is the maximum-evidence score: the strength of the
	// strongest claim any single evaluator is making, in either direction.
	// An evaluator reporting 0.05 risk is making a 0.95-strength claim that
	// the login is fine.
	raw := hi
	if quiet := 1 - lo; quiet > raw {
		raw = quiet
	}

	breakdown := model.CalibrationBreakdown{Raw: raw}
	calibrated := raw

	// Step 1: overconfidence penalty.
	if raw > overconfidenceKnee {
		penalty := (raw - overconfidenceKnee) * overconfidenceSlope
		if disagreement > lowDisagreement {
			penalty *= 1 + disagreement
		} else {
			penalty *= 0.3
		}
		breakdown.OverconfidencePenalty = penalty
		calibrated -= penalty
	}

	// Step 2: disagreement penalty or agreement boost.
	switch {
	case disagreement >= highDisagreement:
		penalty := highDisagreementBase + (disagreement-highDisagreement)*disagreementSlope
		breakdown.DisagreementAdjustment = -penalty
		calibrated -= penalty
	case disagreement >= moderateDisagreement:
		penalty := (disagreement - moderateDisagreement) * disagreementSlope
		breakdown.DisagreementAdjustment = -penalty
		calibrated -= penalty
	case disagreement < lowDisagreement:
		breakdown.DisagreementAdjustment = agreementBoost
		calibrated += agreementBoost
	}

	// Step 3: evidence penalties, each halved under low disagreement. The
	// risk-direction checks use hi, the strongest risky claim, so a quiet
	// login is not penalized for lacking risk factors.
	var evidence float64
	if hi > 0.5 && len(risk.RiskFactors) == 0 {
		evidence += noRiskFactorPenalty
	}
	if len(network.Evidence) == 0 && disagreement >= moderateDisagreement {
		evidence += noNetworkPenalty
	}
	if behavior.MatchScore < 0.5 && hi > 0.7 && disagreement >= lowDisagreement {
		evidence += behaviorTensionPenalty
	}
	if disagreement < lowDisagreement {
		evidence /= 2
	}
	breakdown.EvidencePenalty = evidence
	calibrated -= evidence

	// Step 4: escalation nudge toward the human when uncertainty compounds.
	if calibrated < nudgeThreshold && disagreement >= moderateDisagreement {
		nudge := (nudgeThreshold - calibrated) * nudgeSlope
		breakdown.EscalationNudge = nudge
		calibrated -= nudge
	}

	calibrated = common.Clamp01(calibrated)
	breakdown.Final = calibrated

	verdict := model.ConfidenceVerdict{
		FinalConfidence: calibrated,
		Disagreement:    disagreement,
		Breakdown:       breakdown,
		Permission:      model.PermissionAIAllowed,
	}

	if calibrated < minAIConfidence || disagreement > maxAIDisagreement {
		verdict.Permission = model.PermissionHumanRequired
		if disagreement > maxAIDisagreement {
			verdict.EscalationReason = model.ReasonHighDisagreement
		} else {
			verdict.EscalationReason = model.ReasonLowConfidence
		}
	}

	return verdict
}
