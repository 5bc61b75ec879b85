//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package policy implements the deterministic veto/escalate layer that
// sits over every automated decision.
//
// The engine evaluates a fixed, ordered rule set against a versioned
// policy [Document]; the first rule that vetoes or escalates wins. Rules
// never throw: the outcome is always a [Verdict] sum over
// {APPROVE, VETO, ESCALATE} carrying the violations and reasons.
package policy

import (
	"sync/atomic"
	"time"

	"github.com/trustline/authguard/internal/logging"
	"github.com/trustline/authguard/pkg/core/model"
)

var logger = logging.GetLogger("authguard.policy")

const agent = "policy"

// Decision is the outcome kind of a policy check.
type Decision string

// Policy outcomes.
const (
	DecisionApprove  Decision = "APPROVE"
	DecisionVeto     Decision = "VETO"
	DecisionEscalate Decision = "ESCALATE"
)

// CheckInput is the request-scoped input to a policy check.
type CheckInput struct {
	ProposedAction model.Action
	Confidence     float64
	RiskScore      float64
	Disagreement   float64
	UserID         string
	SessionID      string
}

// Verdict is the result of a policy check.
type Verdict struct {
	Decision       Decision
	ApprovedAction model.Action
	Violations     []string
	Reasons        []string
	PolicyVersion  string
}

// Engine applies the versioned rule document to proposed actions. Per-user
// sliding windows live in-process behind striped locks; the rule document
// is swapped atomically on reload.
type Engine struct {
	doc   atomic.Pointer[Document]
	state *stateTable
}

// NewEngine creates a policy engine over the given document.
func NewEngine(doc *Document) *Engine {
	if doc == nil {
		doc = DefaultDocument()
	}
	e := &Engine{state: newStateTable(time.Now)}
	e.doc.Store(doc)
	return e
}

// WithClock overrides the sliding-window clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.state.clock = clock
	return e
}

// Reload atomically replaces the rule document. Subsequent checks and
// audit entries carry the new policy version.
func (e *Engine) Reload(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	old := e.doc.Swap(doc)
	logger.Infof(agent, "reload", "policy document %s replaced by %s", old.Metadata.Version, doc.Metadata.Version)
	return nil
}

// Version returns the active policy document version.
func (e *Engine) Version() string {
	return e.doc.Load().Metadata.Version
}

// Recommend maps a risk score to an action using the document's risk
// bands. It is used when no proposed action accompanies the check.
func (e *Engine) Recommend(riskScore float64) model.Action {
	t := e.doc.Load().RiskThresholds
	switch {
	case riskScore <= t.LowRiskMax:
		return model.ActionAllow
	case riskScore <= t.MediumRiskMax:
		return model.ActionChallenge
	case riskScore < t.CriticalRiskThreshold:
		return model.ActionBlock
	default:
		return model.ActionEscalate
	}
}

func contains(actions []model.Action, a model.Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

// Check evaluates the ordered rule set. The first veto or escalation wins;
// an approval also records the action against the user's daily budget.
func (e *Engine) Check(in CheckInput) Verdict {
	doc := e.doc.Load()
	v := Verdict{
		Decision:       DecisionApprove,
		ApprovedAction: in.ProposedAction,
		PolicyVersion:  doc.Metadata.Version,
	}

	// Rule 1: the action must be in the allowed set and not human-only.
	if !contains(doc.Actions.Allowed, in.ProposedAction) {
		v.Decision = DecisionVeto
		v.Violations = append(v.Violations, "action_not_allowed")
		v.Reasons = append(v.Reasons, "proposed action is not in the allowed set")
		return v
	}
	if contains(doc.Actions.HumanOnly, in.ProposedAction) {
		v.Decision = DecisionVeto
		v.Violations = append(v.Violations, "action_human_only")
		v.Reasons = append(v.Reasons, "proposed action requires a human")
		return v
	}

	// Rules 2 and 3: confidence floors.
	if in.Confidence < doc.Confidence.MinToEscalate {
		v.Decision = DecisionEscalate
		v.Reasons = append(v.Reasons, "confidence below escalation floor")
		return v
	}
	if in.Confidence < doc.Confidence.MinToAllow {
		v.Decision = DecisionEscalate
		v.Reasons = append(v.Reasons, "confidence below automation floor")
		return v
	}

	// Rule 4: disagreement ceiling.
	if in.Disagreement > doc.Escalation.DisagreementThreshold {
		v.Decision = DecisionEscalate
		v.Reasons = append(v.Reasons, "evaluator disagreement above threshold")
		return v
	}

	// Rule 5: critical risk is never automated.
	if in.RiskScore >= doc.RiskThresholds.CriticalRiskThreshold {
		v.Decision = DecisionEscalate
		v.Reasons = append(v.Reasons, "risk score at or above critical threshold")
		return v
	}

	// Rule 6: consecutive high-risk logins for the same user.
	if in.RiskScore > doc.RiskThresholds.MediumRiskMax {
		run := e.state.observeHighRisk(in.UserID, doc.RateLimits.HighRiskWindow)
		if run > doc.Escalation.ConsecutiveHighRiskLimit {
			v.Decision = DecisionEscalate
			v.Reasons = append(v.Reasons, "consecutive high-risk limit exceeded")
			return v
		}
	} else {
		e.state.clearHighRisk(in.UserID)
	}

	// Rule 7: per-user daily action budget.
	if count := e.state.countAction(in.UserID); count > doc.Actions.MaxActionsPerUserPerDay {
		v.Decision = DecisionVeto
		v.Violations = append(v.Violations, "daily_action_budget_exceeded")
		v.Reasons = append(v.Reasons, "per-user daily action budget exceeded")
		return v
	}

	return v
}
