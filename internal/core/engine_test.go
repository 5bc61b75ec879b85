//
//  Copyright © Trustline Inc. All rights reserved.
//

package core

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/behavior"
	"github.com/trustline/authguard/pkg/core/config"
	"github.com/trustline/authguard/pkg/core/model"
	"github.com/trustline/authguard/pkg/core/network"
	"github.com/trustline/authguard/pkg/core/options"
	"github.com/trustline/authguard/pkg/core/policy"
	"github.com/trustline/authguard/pkg/core/risk"
	"github.com/trustline/authguard/pkg/ledger"
)

// restrictivePolicy marks ALLOW as human-only, so every automated ALLOW
// proposal is vetoed.
func restrictivePolicy() *policy.Document {
	doc := policy.DefaultDocument()
	doc.Metadata.Version = "restrictive-1"
	doc.Actions.HumanOnly = []model.Action{model.ActionAllow}
	return doc
}

type failingProvider struct{}

func (failingProvider) Lookup(context.Context, string, string) (*network.Context, error) {
	return nil, errors.New("graph service unreachable")
}

// blockingProvider holds its lookup open until the request context ends,
// simulating a hung graph service.
type blockingProvider struct{}

func (blockingProvider) Lookup(ctx context.Context, _ string, _ string) (*network.Context, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestEngine(t *testing.T, extra ...options.EngineOptionsFunc) (*Engine, *ledger.Writer) {
	t.Helper()
	config.ResetConfig()
	config.Init()
	t.Cleanup(config.ResetConfig)

	store, err := ledger.NewStore(t.TempDir())
	require.NoError(t, err)
	writer := ledger.NewWriter(store, ledger.Options{QueueSize: 16})

	opts := &options.EngineOptions{
		RiskEvaluator: risk.NewEvaluator(),
		ProfileStore:  behavior.NewMemoryStore(),
		Audit:         writer,
	}
	for _, fn := range extra {
		fn(opts)
	}

	eng, err := NewEngine(opts)
	require.NoError(t, err)
	return eng, writer
}

func cleanLogin() *model.InputContext {
	ts := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	return &model.InputContext{
		Login: model.LoginEvent{
			EventID:    "evt-1",
			Timestamp:  ts,
			UserID:     "user-1",
			SessionID:  "sess-1",
			Success:    true,
			AuthMethod: model.AuthPassword,
		},
		Session: model.Session{
			SessionID: "sess-1",
			DeviceID:  "dev-1",
			IPAddress: "198.51.100.7",
			GeoLocation: model.GeoLocation{
				City: "Boston", Country: "US", Latitude: 42.36, Longitude: -71.06,
			},
			StartTime: ts,
		},
		Device: model.Device{
			DeviceID:   "dev-1",
			DeviceType: model.DeviceDesktop,
			OS:         "macOS",
			Browser:    "Firefox",
			IsKnown:    true,
		},
		User: model.User{
			UserID:                "user-1",
			AccountAgeDays:        720,
			HomeCountry:           "US",
			HomeCity:              "Boston",
			TypicalLoginHourStart: 9,
			TypicalLoginHourEnd:   18,
		},
	}
}

func riskyLogin() *model.InputContext {
	in := cleanLogin()
	in.Login.Timestamp = time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC)
	in.Login.FailedAttemptsBefore = 4
	in.Login.IsNewDevice = true
	in.Login.IsNewIP = true
	in.Login.IsNewLocation = true
	in.Session.GeoLocation = model.GeoLocation{City: "Moscow", Country: "RU", Latitude: 55.76, Longitude: 37.62}
	in.Session.IsVPN = true
	in.Session.IsTor = true
	in.Device.IsKnown = false
	return in
}

// drain flushes the writer so the test can read the ledger, then verifies
// every partition chain.
func drain(t *testing.T, w *ledger.Writer) []*ledger.Entry {
	t.Helper()
	require.NoError(t, w.Shutdown(context.Background()))
	require.NoError(t, w.Store().VerifyAll())

	partitions, err := w.Store().Partitions()
	require.NoError(t, err)

	var entries []*ledger.Entry
	for _, p := range partitions {
		es, err := w.Store().ReadPartition(p)
		require.NoError(t, err)
		entries = append(entries, es...)
	}
	return entries
}

func TestEvaluateLoginAllowsCleanLogin(t *testing.T) {
	eng, w := newTestEngine(t)

	res, err := eng.EvaluateLogin(context.Background(), cleanLogin())
	require.NoError(t, err)

	assert.Equal(t, model.ActionAllow, res.Decision)
	assert.GreaterOrEqual(t, res.Confidence, 0.80)
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.False(t, res.EscalationFlag)
	assert.NotEmpty(t, res.Explanation)
	assert.NotEmpty(t, res.AuditID)
	assert.NotEqual(t, placeholderAuditID, res.AuditID)

	entries := drain(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, res.AuditID, entries[0].EntryID)
	assert.Equal(t, ledger.EventDecision, entries[0].EventType)
	assert.Equal(t, "ALLOW", entries[0].Action)
	assert.Equal(t, string(model.DecidedByAI), entries[0].DecidedBy)
	assert.NotEmpty(t, entries[0].PolicyVersion)
	assert.Contains(t, entries[0].AgentOutputs, "risk")
	assert.Contains(t, entries[0].AgentOutputs, "behavior")
	assert.Contains(t, entries[0].AgentOutputs, "network")
	assert.Contains(t, entries[0].AgentOutputs, "confidence")
}

func TestEvaluateLoginEscalatesRiskyLogin(t *testing.T) {
	eng, w := newTestEngine(t)

	res, err := eng.EvaluateLogin(context.Background(), riskyLogin())
	require.NoError(t, err)

	assert.Equal(t, model.ActionEscalate, res.Decision)
	assert.True(t, res.EscalationFlag)
	assert.Contains(t, res.Explanation, "a new device")
	assert.Contains(t, res.Explanation, "a new location")

	entries := drain(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EventEscalation, entries[0].EventType)
	assert.Equal(t, string(model.DecidedByHuman), entries[0].DecidedBy)
	assert.Equal(t, string(model.ReasonHighDisagreement), entries[0].Metadata["escalation_reason"])
	assert.NotEmpty(t, entries[0].Metadata["case_id"])
}

func TestEvaluateLoginAgentFailure(t *testing.T) {
	eng, w := newTestEngine(t, options.WithNetworkProvider(failingProvider{}))

	res, err := eng.EvaluateLogin(context.Background(), cleanLogin())
	require.NoError(t, err)

	assert.Equal(t, model.ActionEscalate, res.Decision)
	assert.True(t, res.EscalationFlag)
	assert.Zero(t, res.Confidence)
	assert.Contains(t, res.Explanation, "could not be completed")

	entries := drain(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EventEscalation, entries[0].EventType)
	assert.Equal(t, string(model.ReasonAgentFailure), entries[0].Metadata["escalation_reason"])
	assert.NotContains(t, entries[0].Metadata, "timeout")
}

func TestEvaluateLoginDeadlineExpires(t *testing.T) {
	// A hung evaluator must not hang the request: when the deadline
	// expires mid fan-out the flow escalates with zero confidence while
	// the outstanding agent finishes in the background.
	eng, w := newTestEngine(t, options.WithNetworkProvider(blockingProvider{}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := eng.EvaluateLogin(ctx, cleanLogin())
	require.NoError(t, err)

	assert.Equal(t, model.ActionEscalate, res.Decision)
	assert.True(t, res.EscalationFlag)
	assert.Zero(t, res.Confidence)
	assert.Contains(t, res.Explanation, "could not be completed")

	entries := drain(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EventEscalation, entries[0].EventType)
	assert.Equal(t, string(model.ReasonAgentFailure), entries[0].Metadata["escalation_reason"])
	assert.Equal(t, true, entries[0].Metadata["timeout"])
	assert.NotEmpty(t, entries[0].Metadata["case_id"])
}

func TestEvaluateLoginRejectsInvalidInput(t *testing.T) {
	eng, w := newTestEngine(t)
	defer w.Shutdown(context.Background()) //nolint:errcheck

	in := cleanLogin()
	in.User.UserID = "someone-else"

	_, err := eng.EvaluateLogin(context.Background(), in)
	require.Error(t, err)
	code, ok := common.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeValidation, code)
}

func TestEvaluateLoginDeterministic(t *testing.T) {
	eng, w := newTestEngine(t)
	defer w.Shutdown(context.Background()) //nolint:errcheck

	first, err := eng.EvaluateLogin(context.Background(), cleanLogin())
	require.NoError(t, err)
	second, err := eng.EvaluateLogin(context.Background(), cleanLogin())
	require.NoError(t, err)

	assert.Equal(t, first.Decision, second.Decision)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Explanation, second.Explanation)
	// Identifiers are fresh per request.
	assert.NotEqual(t, first.AuditID, second.AuditID)
}

func TestEvaluateLoginPolicyOverride(t *testing.T) {
	// A policy that forbids automated ALLOW forces even a clean login
	// through escalation.
	eng, w := newTestEngine(t, options.WithPolicyDocument(restrictivePolicy()))

	res, err := eng.EvaluateLogin(context.Background(), cleanLogin())
	require.NoError(t, err)

	assert.Equal(t, model.ActionEscalate, res.Decision)
	assert.True(t, res.EscalationFlag)

	entries := drain(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, string(model.ReasonPolicyOverride), entries[0].Metadata["escalation_reason"])
	assert.Equal(t, []interface{}{"action_human_only"}, entries[0].Metadata["policy_violations"])
}

func TestRiskModeReportsHeuristic(t *testing.T) {
	eng, w := newTestEngine(t)
	defer w.Shutdown(context.Background()) //nolint:errcheck

	assert.Equal(t, string(risk.ModeHeuristic), eng.RiskMode())
}
