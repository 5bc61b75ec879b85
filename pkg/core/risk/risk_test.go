//
//  Copyright © Trustline Inc. All rights reserved.
//

package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustline/authguard/pkg/core/model"
)

func baselineLogin() (*model.LoginEvent, *model.Session, *model.Device) {
	login := &model.LoginEvent{
		EventID:    "evt-1",
		Timestamp:  time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
		UserID:     "user-1",
		SessionID:  "sess-1",
		AuthMethod: model.AuthMFA,
	}
	session := &model.Session{SessionID: "sess-1", DeviceID: "dev-1"}
	device := &model.Device{DeviceID: "dev-1", DeviceType: model.DeviceDesktop, IsKnown: true}
	return login, session, device
}

func TestHeuristicScore(t *testing.T) {
	tests := []struct {
		name            string
		mutate          func(l *model.LoginEvent, s *model.Session, d *model.Device)
		expectedScore   float64
		expectedFactors []string
	}{
		{
			name:            "clean login scores zero",
			mutate:          func(l *model.LoginEvent, s *model.Session, d *model.Device) {},
			expectedScore:   0,
			expectedFactors: []string{},
		},
		{
			name: "new device",
			mutate: func(l *model.LoginEvent, s *model.Session, d *model.Device) {
				l.IsNewDevice = true
			},
			expectedScore:   0.25,
			expectedFactors: []string{"new_device"},
		},
		{
			name: "unknown device implies new device",
			mutate: func(l *model.LoginEvent, s *model.Session, d *model.Device) {
				d.IsKnown = false
			},
			expectedScore:   0.25,
			expectedFactors: []string{"new_device"},
		},
		{
			name: "failed attempts capped at three",
			mutate: func(l *model.LoginEvent, s *model.Session, d *model.Device) {
				l.FailedAttemptsBefore = 7
			},
			expectedScore:   0.30,
			expectedFactors: []string{"failed_attempts"},
		},
		{
			name: "tor outweighs location",
			mutate: func(l *model.LoginEvent, s *model.Session, d *model.Device) {
				l.IsNewLocation = true
				s.IsTor = true
			},
			expectedScore:   0.65,
			expectedFactors: []string{"tor_detected", "new_location"},
		},
		{
			name: "equal weights fall back to feature order",
			mutate: func(l *model.LoginEvent, s *model.Session, d *model.Device) {
				s.IsVPN = true
				gap := 1000.0
				l.TimeSinceLastLoginHours = &gap
			},
			expectedScore:   0.20,
			expectedFactors: []string{"vpn_detected", "long_absence"},
		},
		{
			name: "score clamps at one",
			mutate: func(l *model.LoginEvent, s *model.Session, d *model.Device) {
				l.IsNewDevice = true
				l.IsNewIP = true
				l.IsNewLocation = true
				l.FailedAttemptsBefore = 3
				s.IsVPN = true
				s.IsTor = true
			},
			expectedScore: 1,
			expectedFactors: []string{
				"tor_detected", "new_location", "failed_attempts",
				"new_device", "new_ip", "vpn_detected",
			},
		},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			login, session, device := baselineLogin()
			tt.mutate(login, session, device)

			eval, err := e.Evaluate(login, session, device)
			require.NoError(t, err)
			assert.InDelta(t, tt.expectedScore, eval.RiskScore, 1e-9)
			if len(tt.expectedFactors) == 0 {
				assert.Empty(t, eval.RiskFactors)
			} else {
				assert.Equal(t, tt.expectedFactors, eval.RiskFactors)
			}
		})
	}
}

func TestHeuristicDeterminism(t *testing.T) {
	e := NewEvaluator()
	login, session, device := baselineLogin()
	login.IsNewDevice = true
	session.IsVPN = true

	first, err := e.Evaluate(login, session, device)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := e.Evaluate(login, session, device)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFeatures(t *testing.T) {
	login, session, device := baselineLogin()
	gap := 750.0
	login.TimeSinceLastLoginHours = &gap
	login.FailedAttemptsBefore = 5

	v := Features(login, session, device)
	require.Len(t, v, FeatureCount)

	assert.Equal(t, float64(failedAttemptsCap), v[featFailedCapped])
	assert.Equal(t, 1.0, v[featFailedExcessive])
	assert.Equal(t, 750.0, v[featHoursSinceLogin])
	assert.Equal(t, 1.0, v[featLongAbsence])
	// mfa one-hot is the second auth slot
	assert.Equal(t, 0.0, v[featAuthPassword])
	assert.Equal(t, 1.0, v[featAuthPassword+1])
}

func TestFeaturesUnknownGap(t *testing.T) {
	login, session, device := baselineLogin()
	v := Features(login, session, device)
	assert.Equal(t, -1.0, v[featHoursSinceLogin])
	assert.Equal(t, 0.0, v[featLongAbsence])
}
