//
//  Copyright © Trustline Inc. All rights reserved.
//

package model

import (
	"github.com/trustline/authguard/pkg/common"
)

func validAuthMethod(m AuthMethod) bool {
	for _, v := range AuthMethods {
		if v == m {
			return true
		}
	}
	return false
}

func validDeviceType(d DeviceType) bool {
	for _, v := range DeviceTypes {
		if v == d {
			return true
		}
	}
	return false
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}

// Validate checks the structural and referential invariants of the context.
// The transport layer calls this before the context enters the pipeline;
// the pipeline itself assumes a valid context.
func (c *InputContext) Validate() *common.Error {
	switch {
	case c.Login.EventID == "":
		return common.NewError(common.CodeValidation, "login_event.event_id is required")
	case c.Login.UserID == "":
		return common.NewError(common.CodeValidation, "login_event.user_id is required")
	case c.Login.SessionID == "":
		return common.NewError(common.CodeValidation, "login_event.session_id is required")
	case c.Login.Timestamp.IsZero():
		return common.NewError(common.CodeValidation, "login_event.timestamp is required")
	}

	// Referential invariants tying the four entities together.
	if c.Login.SessionID != c.Session.SessionID {
		return common.NewError(common.CodeValidation, "login_event.session_id does not match session.session_id")
	}
	if c.Login.UserID != c.User.UserID {
		return common.NewError(common.CodeValidation, "login_event.user_id does not match user.user_id")
	}
	if c.Session.DeviceID != c.Device.DeviceID {
		return common.NewError(common.CodeValidation, "session.device_id does not match device.device_id")
	}

	if !validAuthMethod(c.Login.AuthMethod) {
		return common.NewErrorf(common.CodeValidation, "unsupported auth_method %q", c.Login.AuthMethod)
	}
	if c.Login.FailedAttemptsBefore < 0 {
		return common.NewError(common.CodeValidation, "failed_attempts_before must be non-negative")
	}
	if h := c.Login.TimeSinceLastLoginHours; h != nil && *h < 0 {
		return common.NewError(common.CodeValidation, "time_since_last_login_hours must be non-negative")
	}

	if !validDeviceType(c.Device.DeviceType) {
		return common.NewErrorf(common.CodeValidation, "unsupported device_type %q", c.Device.DeviceType)
	}

	geo := c.Session.GeoLocation
	if len(geo.Country) != 2 {
		return common.NewErrorf(common.CodeValidation, "geo_location.country %q is not ISO-3166 alpha-2", geo.Country)
	}
	if geo.Latitude < -90 || geo.Latitude > 90 {
		return common.NewError(common.CodeValidation, "geo_location.latitude out of range")
	}
	if geo.Longitude < -180 || geo.Longitude > 180 {
		return common.NewError(common.CodeValidation, "geo_location.longitude out of range")
	}

	if c.User.AccountAgeDays < 0 {
		return common.NewError(common.CodeValidation, "user.account_age_days must be non-negative")
	}
	if !validHour(c.User.TypicalLoginHourStart) || !validHour(c.User.TypicalLoginHourEnd) {
		return common.NewError(common.CodeValidation, "user typical login hours must be in [0,23]")
	}

	return nil
}

// inTypicalHours reports whether hour falls inside the user's typical login
// window. Both endpoints are inclusive; the window may wrap past midnight.
func (u *User) inTypicalHours(hour int) bool {
	start, end := u.TypicalLoginHourStart, u.TypicalLoginHourEnd
	if start <= end {
		return hour >= start && hour <= end
	}
	// Overnight window, e.g. 22..6.
	return hour >= start || hour <= end
}
