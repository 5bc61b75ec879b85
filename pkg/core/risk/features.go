//
//  Copyright © Trustline Inc. All rights reserved.
//

package risk

import (
	"github.com/trustline/authguard/pkg/core/model"
)

// FeatureCount is the width of the feature vector. Model artifacts whose
// feature list disagrees with this schema are rejected at load time.
const FeatureCount = 14

// FeatureNames is the canonical feature schema, in fixed order. The order
// is load-bearing: it defines one-hot positions, attribution indexes, and
// the tie-break ordering of emitted risk factors.
var FeatureNames = []string{
	"new_device",
	"unknown_device",
	"new_ip",
	"new_location",
	"vpn",
	"tor",
	"failed_attempts_capped",
	"failed_attempts_excessive",
	"hours_since_last_login",
	"long_absence",
	"auth_password",
	"auth_mfa",
	"auth_sso",
	"auth_biometric",
}

// Feature vector indexes, matching FeatureNames.
const (
	featNewDevice = iota
	featUnknownDevice
	featNewIP
	featNewLocation
	featVPN
	featTor
	featFailedCapped
	featFailedExcessive
	featHoursSinceLogin
	featLongAbsence
	featAuthPassword
)

// failedAttemptsCap bounds the contribution of repeated failures; attempts
// beyond the cap count as the cap.
const failedAttemptsCap = 3

// longAbsenceHours is the threshold beyond which a gap since the last
// login is considered a long absence (30 days).
const longAbsenceHours = 720

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Features derives the 14-element feature vector from the login inputs.
func Features(login *model.LoginEvent, session *model.Session, device *model.Device) []float64 {
	v := make([]float64, FeatureCount)

	v[featNewDevice] = b2f(login.IsNewDevice || !device.IsKnown)
	v[featUnknownDevice] = b2f(!device.IsKnown)
	v[featNewIP] = b2f(login.IsNewIP)
	v[featNewLocation] = b2f(login.IsNewLocation)
	v[featVPN] = b2f(session.IsVPN)
	v[featTor] = b2f(session.IsTor)

	failed := login.FailedAttemptsBefore
	if failed > failedAttemptsCap {
		v[featFailedCapped] = failedAttemptsCap
	} else {
		v[featFailedCapped] = float64(failed)
	}
	v[featFailedExcessive] = b2f(failed >= failedAttemptsCap)

	if login.TimeSinceLastLoginHours != nil {
		v[featHoursSinceLogin] = *login.TimeSinceLastLoginHours
		v[featLongAbsence] = b2f(*login.TimeSinceLastLoginHours > longAbsenceHours)
	} else {
		v[featHoursSinceLogin] = -1
	}

	for i, m := range model.AuthMethods {
		if login.AuthMethod == m {
			v[featAuthPassword+i] = 1
		}
	}

	return v
}
