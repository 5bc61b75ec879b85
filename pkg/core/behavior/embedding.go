//
//  Copyright © Trustline Inc. All rights reserved.
//

package behavior

import (
	"math"

	"github.com/trustline/authguard/pkg/core/model"
)

// EmbeddingDim is the width of the session embedding.
const EmbeddingDim = 16

// Embedding dimension layout. Cyclical features use sine/cosine pairs so
// that hours 23 and 1 land near each other in embedding space.
const (
	dimHourSin = iota
	dimHourCos
	dimDaySin
	dimDayCos
	dimDeviceDesktop // one-hot over {desktop, mobile, tablet}
	dimDeviceMobile
	dimDeviceTablet
	dimAuthPassword // one-hot over the four auth methods
	dimAuthMFA
	dimAuthSSO
	dimAuthBiometric
	dimLatitude
	dimLongitude
	dimVPN
	dimTor
	dimLoginGap
)

// logGapScale normalizes log1p(hours) into [0,1]; log1p(720h) ≈ 6.58 so a
// 30-day gap sits near the top of the range.
const logGapScale = 7

// Embed maps a login context into the 16-dimensional session embedding.
func Embed(login *model.LoginEvent, session *model.Session, device *model.Device) []float64 {
	v := make([]float64, EmbeddingDim)

	hour := float64(login.Timestamp.UTC().Hour())
	v[dimHourSin] = math.Sin(2 * math.Pi * hour / 24)
	v[dimHourCos] = math.Cos(2 * math.Pi * hour / 24)

	day := float64(login.Timestamp.UTC().Weekday())
	v[dimDaySin] = math.Sin(2 * math.Pi * day / 7)
	v[dimDayCos] = math.Cos(2 * math.Pi * day / 7)

	for i, dt := range model.DeviceTypes {
		if device.DeviceType == dt {
			v[dimDeviceDesktop+i] = 1
		}
	}

	for i, am := range model.AuthMethods {
		if login.AuthMethod == am {
			v[dimAuthPassword+i] = 1
		}
	}

	v[dimLatitude] = session.GeoLocation.Latitude / 90
	v[dimLongitude] = session.GeoLocation.Longitude / 180

	if session.IsVPN {
		v[dimVPN] = 1
	}
	if session.IsTor {
		v[dimTor] = 1
	}

	if login.TimeSinceLastLoginHours != nil {
		v[dimLoginGap] = math.Min(math.Log1p(*login.TimeSinceLastLoginHours)/logGapScale, 1)
	} else {
		v[dimLoginGap] = 0.5
	}

	return v
}
