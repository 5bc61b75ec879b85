//
//  Copyright © Trustline Inc. All rights reserved.
//

package risk

import (
	"sort"

	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/model"
)

// Heuristic factor weights. The failed-attempts weight is per attempt,
// capped at failedAttemptsCap attempts.
const (
	weightNewDevice      = 0.25
	weightNewIP          = 0.15
	weightNewLocation    = 0.30
	weightFailedAttempts = 0.10
	weightVPN            = 0.10
	weightTor            = 0.35
	weightLongAbsence    = 0.10
)

type factor struct {
	tag     string
	weight  float64
	feature int // feature-vector index, used as the tie-break
}

// heuristicScore computes the deterministic additive risk score. Factors
// are emitted in descending weight order; equal weights fall back to
// feature-vector order.
func heuristicScore(v []float64) model.RiskEvaluation {
	var active []factor

	if v[featNewDevice] > 0 {
		active = append(active, factor{"new_device", weightNewDevice, featNewDevice})
	}
	if v[featNewIP] > 0 {
		active = append(active, factor{"new_ip", weightNewIP, featNewIP})
	}
	if v[featNewLocation] > 0 {
		active = append(active, factor{"new_location", weightNewLocation, featNewLocation})
	}
	if v[featFailedCapped] > 0 {
		active = append(active, factor{"failed_attempts", weightFailedAttempts * v[featFailedCapped], featFailedCapped})
	}
	if v[featVPN] > 0 {
		active = append(active, factor{"vpn_detected", weightVPN, featVPN})
	}
	if v[featTor] > 0 {
		active = append(active, factor{"tor_detected", weightTor, featTor})
	}
	if v[featLongAbsence] > 0 {
		active = append(active, factor{"long_absence", weightLongAbsence, featLongAbsence})
	}

	score := 0.0
	for _, f := range active {
		score += f.weight
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].weight != active[j].weight {
			return active[i].weight > active[j].weight
		}
		return active[i].feature < active[j].feature
	})

	tags := make([]string, 0, len(active))
	for _, f := range active {
		tags = append(tags, f.tag)
	}

	return model.RiskEvaluation{
		RiskScore:   common.Clamp01(score),
		RiskFactors: tags,
	}
}
