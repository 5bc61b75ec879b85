//
//  Copyright © Trustline Inc. All rights reserved.
//

package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"

	"github.com/trustline/authguard/internal/logging"
	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/behavior"
	"github.com/trustline/authguard/pkg/core/confidence"
	"github.com/trustline/authguard/pkg/core/config"
	"github.com/trustline/authguard/pkg/core/explain"
	"github.com/trustline/authguard/pkg/core/model"
	"github.com/trustline/authguard/pkg/core/network"
	"github.com/trustline/authguard/pkg/core/options"
	"github.com/trustline/authguard/pkg/core/policy"
	"github.com/trustline/authguard/pkg/ledger"
)

var logger = logging.GetLogger("authguard.core")

const agent = "engine"

// placeholderAuditID is attached to a response when the ledger could not
// record the decision. The decision itself still stands.
const placeholderAuditID = "audit-unavailable"

// Engine is the decision flow: router phases, confidence gate, policy
// check, audit submission. Safe for concurrent use.
type Engine struct {
	router *router
	policy *policy.Engine
	drift  *confidence.Monitor
	opts   *options.EngineOptions
	clock  func() time.Time
}

// NewEngine wires an engine from resolved options. Callers normally go
// through pkg/core, which resolves configuration into options first.
func NewEngine(opts *options.EngineOptions) (*Engine, error) {
	if opts.RiskEvaluator == nil || opts.ProfileStore == nil || opts.Audit == nil {
		return nil, common.NewError(common.CodeConfig, "engine options missing required components")
	}

	behaviorEval := behavior.NewEvaluator(opts.ProfileStore, behavior.Options{
		MinSessions:   config.VConfig.GetInt(config.BehaviorMinSessions),
		UpdateOnScore: config.VConfig.GetBool(config.BehaviorUpdateOnScore),
	})
	networkEval := network.NewEvaluator(opts.NetworkProvider)

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	} else {
		behaviorEval.WithClock(clock)
	}

	policyEngine := policy.NewEngine(opts.PolicyDocument)
	if opts.Clock != nil {
		policyEngine.WithClock(opts.Clock)
	}

	return &Engine{
		router: newRouter(opts.RiskEvaluator, behaviorEval, networkEval, opts.Workers),
		policy: policyEngine,
		drift:  confidence.NewMonitor(config.VConfig.GetInt(config.DriftWindow)),
		opts:   opts,
		clock:  clock,
	}, nil
}

// Policy exposes the policy engine for reloads.
func (e *Engine) Policy() *policy.Engine {
	return e.policy
}

// RiskMode reports whether the risk evaluator runs the model artifact or
// the heuristic fallback.
func (e *Engine) RiskMode() string {
	return string(e.opts.RiskEvaluator.Mode())
}

// EvaluateLogin runs one authentication event through the full decision
// flow and returns the external response.
func (e *Engine) EvaluateLogin(ctx context.Context, in *model.InputContext) (*model.Response, error) {
	logger.Debug(agent, "EvaluateLogin", "Enter")
	defer logger.Debug(agent, "EvaluateLogin", "Exit")

	if err := in.Validate(); err != nil {
		return nil, err
	}

	start := e.clock()
	decisionID := uuid.New().String()

	res, err := e.router.phase1(ctx, in)
	if err != nil {
		return e.finishAgentFailure(ctx, in, decisionID, start, res, err), nil
	}

	verdict := e.router.phase2(res)

	expl, err := e.router.phase3(res, verdict)
	if err != nil {
		return e.finishAgentFailure(ctx, in, decisionID, start, res, err), nil
	}

	if verdict.Permission == model.PermissionHumanRequired {
		esc := e.buildEscalation(in, verdict.EscalationReason, res, expl.Text)
		return e.finish(ctx, in, decisionID, start, res, verdict, model.ActionEscalate, model.DecidedByHuman, expl.Text, esc, nil, nil), nil
	}

	proposed := explain.MapAction(expl.RecommendedAction)
	check := e.policy.Check(policy.CheckInput{
		ProposedAction: proposed,
		Confidence:     verdict.FinalConfidence,
		RiskScore:      res.risk.RiskScore,
		Disagreement:   verdict.Disagreement,
		UserID:         in.User.UserID,
		SessionID:      in.Session.SessionID,
	})

	if check.Decision != policy.DecisionApprove {
		logger.Infof(agent, "EvaluateLogin", "policy %s overrides %s for session %s: %v",
			check.Decision, proposed, in.Session.SessionID, check.Reasons)
		esc := e.buildEscalation(in, model.ReasonPolicyOverride, res, expl.Text)
		return e.finish(ctx, in, decisionID, start, res, verdict, model.ActionEscalate, model.DecidedByHuman, expl.Text, esc, &check, nil), nil
	}

	return e.finish(ctx, in, decisionID, start, res, verdict, check.ApprovedAction, model.DecidedByAI, expl.Text, nil, &check, nil), nil
}

// buildEscalation assembles the facts-only case file handed to a human
// reviewer.
func (e *Engine) buildEscalation(in *model.InputContext, reason model.EscalationReason, res *phase1Result, summary string) *model.EscalationCase {
	esc := &model.EscalationCase{
		CaseID:    uuid.New().String(),
		CreatedAt: e.clock().UTC(),
		Reason:    reason,
		SessionID: in.Session.SessionID,
		UserID:    in.User.UserID,
		Summary:   summary,
	}
	if res != nil {
		esc.RiskFactors = res.risk.RiskFactors
		esc.Deviations = res.behavior.Deviations
		esc.Evidence = res.network.Evidence
	}
	return esc
}

// finishAgentFailure converts a pipeline failure into the mandated
// ESCALATE outcome: confidence 0, disagreement 1, facts = error summary.
func (e *Engine) finishAgentFailure(ctx context.Context, in *model.InputContext, decisionID string, start time.Time, res *phase1Result, cause error) *model.Response {
	logger.Errorf(agent, "EvaluateLogin", "agent failure for session %s: %+v", in.Session.SessionID, cause)
	if e.opts.Metrics != nil {
		failedAgent := agent
		if res != nil {
			if failed, _ := res.failures(); len(failed) > 0 {
				failedAgent = failed[0]
			}
		}
		e.opts.Metrics.AgentFailure(failedAgent)
	}

	verdict := model.ConfidenceVerdict{
		FinalConfidence:  0,
		Disagreement:     1,
		Permission:       model.PermissionHumanRequired,
		EscalationReason: model.ReasonAgentFailure,
	}
	summary := "Evaluation could not be completed: " + cause.Error()
	esc := e.buildEscalation(in, model.ReasonAgentFailure, res, summary)

	var meta map[string]interface{}
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		meta = map[string]interface{}{"timeout": true}
	}

	return e.finish(ctx, in, decisionID, start, res, verdict, model.ActionEscalate, model.DecidedByHuman, summary, esc, nil, meta)
}

// finish records the terminal decision artifact, submits the audit entry,
// updates drift tracking and metrics, and shapes the external response.
func (e *Engine) finish(ctx context.Context, in *model.InputContext, decisionID string, start time.Time, res *phase1Result, verdict model.ConfidenceVerdict, action model.Action, decidedBy model.DecidedBy, explanation string, esc *model.EscalationCase, check *policy.Verdict, meta map[string]interface{}) *model.Response {
	escalated := action == model.ActionEscalate

	decision := model.FinalDecision{
		DecisionID:   decisionID,
		Timestamp:    start.UTC(),
		Action:       action,
		DecidedBy:    decidedBy,
		Confidence:   verdict.FinalConfidence,
		Explanation:  explanation,
		SessionID:    in.Session.SessionID,
		UserID:       in.User.UserID,
		Disagreement: verdict.Disagreement,
	}
	if res != nil {
		decision.RiskScore = res.risk.RiskScore
		decision.BehaviorScore = res.behavior.MatchScore
		decision.NetworkScore = res.network.NetworkRisk
	}
	if logger.IsDebugEnabled() {
		if b, err := json.Marshal(decision); err == nil {
			logger.Debugf(agent, "finish", "decision: %s", b)
		}
	}

	entry := ledger.NewEntry(ledger.EventDecision)
	if escalated {
		entry.EventType = ledger.EventEscalation
	}
	entry.DecisionID = decisionID
	entry.SessionID = in.Session.SessionID
	entry.UserID = in.User.UserID
	entry.Action = string(action)
	entry.Confidence = verdict.FinalConfidence
	entry.DecidedBy = string(decidedBy)
	entry.AgentOutputs = e.agentOutputs(res, verdict)
	entry.Metadata = map[string]interface{}{}
	for k, v := range meta {
		entry.Metadata[k] = v
	}
	if check != nil {
		entry.PolicyVersion = check.PolicyVersion
		if len(check.Violations) > 0 {
			entry.Metadata["policy_violations"] = append([]string(nil), check.Violations...)
		}
	} else {
		entry.PolicyVersion = e.policy.Version()
	}
	if esc != nil {
		entry.Metadata["escalation_reason"] = string(esc.Reason)
		entry.Metadata["case_id"] = esc.CaseID
	}

	auditID, err := e.opts.Audit.Submit(entry)
	if err != nil {
		logger.Errorf(agent, "finish", "audit submission failed for decision %s: %+v", decisionID, err)
		auditID = placeholderAuditID
	} else if e.opts.Index != nil {
		e.opts.Index.Record(ctx, entry)
	}

	e.drift.Observe(escalated)
	if e.drift.RecalibrationNeeded() {
		logger.Warnf(agent, "finish", "escalation rate %.2f over the drift window, recalibration recommended", e.drift.EscalationRate())
	}

	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveDecision(string(action), e.clock().Sub(start))
		e.opts.Metrics.ObserveEscalationRate(e.drift.EscalationRate())
	}

	return &model.Response{
		Decision:       action,
		Confidence:     verdict.FinalConfidence,
		Explanation:    explanation,
		EscalationFlag: escalated,
		AuditID:        auditID,
	}
}

// agentOutputs deep-copies the evaluator outputs into the audit record so
// later mutation cannot reach the ledger.
func (e *Engine) agentOutputs(res *phase1Result, verdict model.ConfidenceVerdict) map[string]interface{} {
	out := map[string]interface{}{
		"confidence": verdict,
	}
	if res != nil {
		out[agentRisk] = res.risk
		out[agentBehavior] = res.behavior
		out[agentNetwork] = res.network
	}
	return deepcopy.Copy(out).(map[string]interface{})
}
