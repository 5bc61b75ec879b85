//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package options holds the engine construction options. It is shared
// between pkg/core and internal/core, and thus must be in a separate
// package to avoid circular dependencies.
package options

import (
	"time"

	"github.com/trustline/authguard/pkg/core/behavior"
	"github.com/trustline/authguard/pkg/core/network"
	"github.com/trustline/authguard/pkg/core/policy"
	"github.com/trustline/authguard/pkg/core/risk"
	"github.com/trustline/authguard/pkg/ledger"
	"github.com/trustline/authguard/pkg/ledger/index"
	"github.com/trustline/authguard/pkg/metrics"
)

// EngineOptions defines the configuration options for initializing a
// decision engine: the evaluator agents' backing stores and providers,
// the policy document, and the audit sink.
type EngineOptions struct {
	RiskEvaluator   *risk.Evaluator
	ProfileStore    behavior.Store
	NetworkProvider network.Provider
	PolicyDocument  *policy.Document
	Audit           *ledger.Writer
	Index           *index.Index
	Metrics         *metrics.Metrics
	Clock           func() time.Time
	Workers         int
}

// EngineOptionsFunc is a function that modifies EngineOptions.
type EngineOptionsFunc func(*EngineOptions)

// WithRiskEvaluator overrides the risk evaluator, bypassing the
// configured model artifact path.
func WithRiskEvaluator(e *risk.Evaluator) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.RiskEvaluator = e
	}
}

// WithProfileStore configures the behavioral profile store.
func WithProfileStore(store behavior.Store) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.ProfileStore = store
	}
}

// WithNetworkProvider configures the network context provider.
func WithNetworkProvider(p network.Provider) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.NetworkProvider = p
	}
}

// WithPolicyDocument overrides the policy document, bypassing the
// configured policy path.
func WithPolicyDocument(doc *policy.Document) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.PolicyDocument = doc
	}
}

// WithAudit configures the audit ledger writer.
func WithAudit(w *ledger.Writer) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Audit = w
	}
}

// WithIndex configures the optional operational metadata index.
func WithIndex(ix *index.Index) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Index = ix
	}
}

// WithMetrics configures prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Metrics = m
	}
}

// WithClock overrides the engine clock for deterministic testing.
func WithClock(clock func() time.Time) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Clock = clock
	}
}

// WithWorkers bounds the phase-1 fan-out concurrency.
func WithWorkers(n int) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Workers = n
	}
}
