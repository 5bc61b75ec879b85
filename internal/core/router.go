//
//  Copyright © Trustline Inc. All rights reserved.
//

package core

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/behavior"
	"github.com/trustline/authguard/pkg/core/confidence"
	"github.com/trustline/authguard/pkg/core/explain"
	"github.com/trustline/authguard/pkg/core/model"
	"github.com/trustline/authguard/pkg/core/network"
	"github.com/trustline/authguard/pkg/core/risk"
)

/* Every evaluation routes the input through three phases. Phase 1 fans the
 * three evaluator agents out concurrently on a bounded process-wide pool and
 * waits for all of them to settle; one agent failing does not cancel the
 * others, their results are still collected for the audit trail. Phases 2
 * (confidence calibration) and 3 (explanation) run strictly serial over the
 * collected outputs.
 *
 * Isolation is enforced here by the call signatures: each evaluator receives
 * only the input fields it needs and never another evaluator's output.
 */

// Evaluator identities, used as fixed slots in the phase-1 result and as
// keys in the audit record's agent_outputs.
const (
	agentRisk     = "risk"
	agentBehavior = "behavior"
	agentNetwork  = "network"
)

// phase1Result is the fixed-slot collection of the fan-out outputs. Slots
// are keyed by evaluator identity, so the outcome is insensitive to the
// order in which the agents finish.
type phase1Result struct {
	risk        model.RiskEvaluation
	riskErr     error
	behavior    model.BehaviorEvaluation
	behaviorErr error
	network     model.NetworkEvaluation
	networkErr  error
}

// failures returns the identities of the agents that failed, in fixed slot
// order, plus the first error.
func (r *phase1Result) failures() ([]string, error) {
	var failed []string
	var first error
	if r.riskErr != nil {
		failed = append(failed, agentRisk)
		first = r.riskErr
	}
	if r.behaviorErr != nil {
		failed = append(failed, agentBehavior)
		if first == nil {
			first = r.behaviorErr
		}
	}
	if r.networkErr != nil {
		failed = append(failed, agentNetwork)
		if first == nil {
			first = r.networkErr
		}
	}
	return failed, first
}

// router owns the phase pipeline and the bounded pool the phase-1 agents
// run on.
type router struct {
	risk       *risk.Evaluator
	behavior   *behavior.Evaluator
	network    *network.Evaluator
	calibrator *confidence.Calibrator
	explainer  *explain.Builder

	pool *semaphore.Weighted
}

func newRouter(riskEval *risk.Evaluator, behaviorEval *behavior.Evaluator, networkEval *network.Evaluator, maxWorkers int) *router {
	workers := runtime.NumCPU()
	if maxWorkers > 0 && maxWorkers < workers {
		workers = maxWorkers
	}

	return &router{
		risk:       riskEval,
		behavior:   behaviorEval,
		network:    networkEval,
		calibrator: confidence.NewCalibrator(),
		explainer:  explain.NewBuilder(),
		pool:       semaphore.NewWeighted(int64(workers)),
	}
}

// dispatch runs one agent, signalling done when it settles. The agent body
// acquires its pool slot itself; an acquire failure (context expired while
// waiting for a slot) settles the agent with that error.
func (rt *router) dispatch(done chan<- struct{}, run func()) {
	go func() {
		defer func() { done <- struct{}{} }()
		run()
	}()
}

// phase1 fans out the three evaluators and waits for all of them. If the
// request deadline expires first, the outstanding agents are left to
// complete in the background, their results are discarded, and the phase
// reports the deadline error.
func (rt *router) phase1(ctx context.Context, in *model.InputContext) (*phase1Result, error) {
	res := &phase1Result{}
	done := make(chan struct{}, 3)

	rt.dispatch(done, func() {
		if err := rt.pool.Acquire(ctx, 1); err != nil {
			res.riskErr = err
			return
		}
		defer rt.pool.Release(1)
		res.risk, res.riskErr = rt.risk.Evaluate(&in.Login, &in.Session, &in.Device)
	})
	rt.dispatch(done, func() {
		if err := rt.pool.Acquire(ctx, 1); err != nil {
			res.behaviorErr = err
			return
		}
		defer rt.pool.Release(1)
		res.behavior, res.behaviorErr = rt.behavior.Evaluate(ctx, &in.Login, &in.Session, &in.Device, &in.User)
	})
	rt.dispatch(done, func() {
		if err := rt.pool.Acquire(ctx, 1); err != nil {
			res.networkErr = err
			return
		}
		defer rt.pool.Release(1)
		res.network, res.networkErr = rt.network.Evaluate(ctx, &in.Session, &in.Device)
	})

	for settled := 0; settled < 3; settled++ {
		select {
		case <-done:
		case <-ctx.Done():
			// Outstanding agents complete in the background; their writes
			// land in a result nobody reads again.
			return nil, common.WrapError(common.CodeAgent, "deadline expired during evaluator fan-out", ctx.Err())
		}
	}

	if failed, err := res.failures(); err != nil {
		return res, common.WrapError(common.CodeAgent, "evaluator failed: "+failed[0], err)
	}
	return res, nil
}

// phase2 calibrates confidence over the phase-1 outputs.
func (rt *router) phase2(res *phase1Result) model.ConfidenceVerdict {
	return rt.calibrator.Calibrate(res.risk, res.behavior, res.network)
}

// phase3 builds the explanation and the proposed action.
func (rt *router) phase3(res *phase1Result, verdict model.ConfidenceVerdict) (explain.Explanation, error) {
	return rt.explainer.Build(res.risk, res.behavior, res.network, verdict)
}
