//
//  Copyright © Trustline Inc. All rights reserved.
//

package behavior

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustline/authguard/pkg/core/model"
)

func sessionAt(ts time.Time) (*model.LoginEvent, *model.Session, *model.Device) {
	login := &model.LoginEvent{
		EventID:    "evt-1",
		Timestamp:  ts,
		UserID:     "user-1",
		SessionID:  "sess-1",
		AuthMethod: model.AuthPassword,
	}
	session := &model.Session{
		SessionID: "sess-1",
		DeviceID:  "dev-1",
		GeoLocation: model.GeoLocation{
			City: "Boston", Country: "US", Latitude: 42.36, Longitude: -71.06,
		},
	}
	device := &model.Device{DeviceID: "dev-1", DeviceType: model.DeviceDesktop, IsKnown: true}
	return login, session, device
}

func testUser() *model.User {
	return &model.User{UserID: "user-1", AccountAgeDays: 300}
}

func TestNewUserGetsBaselineScore(t *testing.T) {
	e := NewEvaluator(NewMemoryStore(), DefaultOptions())
	login, session, device := sessionAt(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))

	eval, err := e.Evaluate(context.Background(), login, session, device, testUser())
	require.NoError(t, err)
	assert.Equal(t, newUserMatchScore, eval.MatchScore)
	assert.Equal(t, []string{TagNewUser}, eval.Deviations)
}

func TestUpdateOnScoreBuildsBaseline(t *testing.T) {
	store := NewMemoryStore()
	e := NewEvaluator(store, Options{MinSessions: 5, UpdateOnScore: true})

	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	// Five sessions at the same weekday hour establish a baseline; until
	// then every evaluation reports the new-user score.
	for i := 0; i < 5; i++ {
		login, session, device := sessionAt(base.AddDate(0, 0, 7*i))
		eval, err := e.Evaluate(context.Background(), login, session, device, testUser())
		require.NoError(t, err)
		assert.Equal(t, newUserMatchScore, eval.MatchScore, "session %d", i)
	}

	// The sixth, identical-looking session scores against the baseline and
	// matches it closely.
	login, session, device := sessionAt(base.AddDate(0, 0, 35))
	eval, err := e.Evaluate(context.Background(), login, session, device, testUser())
	require.NoError(t, err)
	assert.Greater(t, eval.MatchScore, 0.8)
	assert.Empty(t, eval.Deviations)
}

func TestDeviationsFlagChangedHabits(t *testing.T) {
	store := NewMemoryStore()
	e := NewEvaluator(store, Options{MinSessions: 5, UpdateOnScore: true})

	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		login, session, device := sessionAt(base.AddDate(0, 0, 7*i))
		_, err := e.Evaluate(context.Background(), login, session, device, testUser())
		require.NoError(t, err)
	}

	// Same user from Tor, on a phone, with biometrics, at 3am on the other
	// side of the world.
	login, session, device := sessionAt(time.Date(2026, 9, 15, 3, 0, 0, 0, time.UTC))
	login.AuthMethod = model.AuthBiometric
	device.DeviceType = model.DeviceMobile
	session.IsTor = true
	session.GeoLocation = model.GeoLocation{City: "Perth", Country: "AU", Latitude: -31.95, Longitude: 115.86}

	eval, err := e.Evaluate(context.Background(), login, session, device, testUser())
	require.NoError(t, err)
	assert.Less(t, eval.MatchScore, 0.5)
	assert.Contains(t, eval.Deviations, "unusual_login_time")
	assert.Contains(t, eval.Deviations, "unusual_device_type")
	assert.Contains(t, eval.Deviations, "unusual_auth_method")
	assert.Contains(t, eval.Deviations, "unusual_location")
	assert.Contains(t, eval.Deviations, "tor_usage_change")
}

func TestUpdateDisabledLeavesProfileUntouched(t *testing.T) {
	store := NewMemoryStore()
	e := NewEvaluator(store, Options{MinSessions: 5, UpdateOnScore: false})

	login, session, device := sessionAt(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))
	for i := 0; i < 10; i++ {
		_, err := e.Evaluate(context.Background(), login, session, device, testUser())
		require.NoError(t, err)
	}

	p, err := store.Acquire(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.SessionCount)
	require.NoError(t, store.Release(context.Background(), p))
}

func TestDeviationOrderIsStable(t *testing.T) {
	// A centroid of zeros against an embedding with every group active
	// emits the groups in their fixed order.
	centroid := make([]float64, EmbeddingDim)
	embedding := make([]float64, EmbeddingDim)
	for i := range embedding {
		embedding[i] = 1
	}

	tags := deviations(centroid, embedding)
	assert.Equal(t, []string{
		"unusual_login_time",
		"unusual_login_day",
		"unusual_device_type",
		"unusual_auth_method",
		"unusual_location",
		"vpn_usage_change",
		"tor_usage_change",
		"unusual_login_gap",
	}, tags)
}
