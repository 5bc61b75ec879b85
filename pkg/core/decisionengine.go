//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package core provides the primary interface for the Trustline AuthGuard
// decision engine, a risk evaluation system that turns authentication
// events into ALLOW, CHALLENGE, BLOCK, or ESCALATE decisions.
//
// Every evaluation fans out to three independent evaluators (risk,
// behavior, network), calibrates the confidence of the combined result,
// checks the proposed action against a versioned policy document, and
// records the outcome on a hash-chained audit ledger. The engine refuses
// to decide when its calibrated confidence is too low or its evaluators
// disagree too much; those cases escalate to a human with a facts-only
// case file.
//
// # Quick Start
//
// Create an engine with default options (heuristic risk scoring,
// in-memory profiles, built-in policy, file-backed audit ledger):
//
//	eng, err := core.NewDecisionEngine()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Shutdown(context.Background())
//
// Evaluate a login:
//
//	resp, err := eng.EvaluateLogin(ctx, input)
//
// # Configuration
//
// The engine supports functional options for every pluggable component:
//
//	eng, err := core.NewDecisionEngine(
//	    options.WithProfileStore(behavior.NewRedisStore(addr)),
//	    options.WithNetworkProvider(provider),
//	    options.WithMetrics(m),
//	)
//
// See the [options] package for all available configuration options.
package core

import (
	"context"
	"time"

	"github.com/trustline/authguard/internal/core"
	"github.com/trustline/authguard/internal/logging"
	"github.com/trustline/authguard/pkg/core/behavior"
	"github.com/trustline/authguard/pkg/core/config"
	"github.com/trustline/authguard/pkg/core/model"
	"github.com/trustline/authguard/pkg/core/network"
	"github.com/trustline/authguard/pkg/core/options"
	"github.com/trustline/authguard/pkg/core/policy"
	"github.com/trustline/authguard/pkg/core/risk"
	"github.com/trustline/authguard/pkg/ledger"
	"github.com/trustline/authguard/pkg/ledger/index"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("authguard.engine")

const agent = "engine"

// DecisionEngine is the primary interface for evaluating authentication
// events.
//
// Implementations are safe for concurrent use by multiple goroutines.
type DecisionEngine interface {
	// EvaluateLogin runs one authentication event through the decision
	// flow. The returned response carries exactly the external decision
	// surface; internal scores never leave the engine.
	EvaluateLogin(ctx context.Context, in *model.InputContext) (*model.Response, error)

	// ReloadPolicy atomically replaces the policy document. Subsequent
	// decisions and audit entries carry the new version.
	ReloadPolicy(doc *policy.Document) error

	// PolicyVersion returns the active policy document version.
	PolicyVersion() string

	// RiskMode reports whether risk scoring runs the model artifact or
	// the heuristic fallback.
	RiskMode() string

	// Audit exposes the ledger writer for verification and shutdown
	// coordination.
	Audit() *ledger.Writer

	// Shutdown drains the audit queue and releases every backing store.
	Shutdown(ctx context.Context) error
}

// DecisionEngineImpl is the default implementation of [DecisionEngine].
// Use [NewDecisionEngine] to create a properly initialized instance.
type DecisionEngineImpl struct {
	instance *core.Engine
	opts     *options.EngineOptions
	store    behavior.Store
	ix       *index.Index
}

// NewDecisionEngine creates and initializes a new [DecisionEngine].
//
// NewDecisionEngine loads configuration from environment variables and
// config files before initializing the engine; functional options override
// whatever configuration resolved. See the [config] package for details.
func NewDecisionEngine(engineOptions ...options.EngineOptionsFunc) (DecisionEngine, error) {
	if err := config.Load(); err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}

	opts := &options.EngineOptions{}
	for _, o := range engineOptions {
		o(opts)
	}
	if err := resolveDefaults(opts); err != nil {
		return nil, err
	}

	instance, err := core.NewEngine(opts)
	if err != nil {
		return nil, err
	}

	eng := &DecisionEngineImpl{
		instance: instance,
		opts:     opts,
		store:    opts.ProfileStore,
		ix:       opts.Index,
	}
	logger.Infof(agent, "init", "decision engine ready (risk mode %s, policy %s)",
		eng.RiskMode(), eng.PolicyVersion())
	return eng, nil
}

// resolveDefaults fills every component the caller did not supply from
// configuration.
func resolveDefaults(opts *options.EngineOptions) error {
	if opts.RiskEvaluator == nil {
		evaluator, err := riskFromConfig()
		if err != nil {
			return err
		}
		opts.RiskEvaluator = evaluator
	}

	if opts.ProfileStore == nil {
		if addr := config.VConfig.GetString(config.BehaviorRedisAddr); addr != "" {
			opts.ProfileStore = behavior.NewRedisStore(addr)
		} else {
			opts.ProfileStore = behavior.NewMemoryStore()
		}
	}

	if opts.NetworkProvider == nil {
		if path := config.VConfig.GetString(config.NetworkContextPath); path != "" {
			provider, err := network.LoadStaticProvider(path)
			if err != nil {
				return err
			}
			opts.NetworkProvider = provider
		}
	}

	if opts.PolicyDocument == nil {
		if path := config.VConfig.GetString(config.PolicyPath); path != "" {
			doc, err := policy.LoadDocument(path)
			if err != nil {
				return err
			}
			opts.PolicyDocument = doc
		} else {
			opts.PolicyDocument = policy.DefaultDocument()
		}
	}

	if opts.Audit == nil {
		store, err := ledger.NewStore(config.VConfig.GetString(config.AuditDir))
		if err != nil {
			return err
		}
		wopts := ledger.Options{
			QueueSize:     config.VConfig.GetInt(config.AuditQueueSize),
			SubmitTimeout: config.VConfig.GetDuration(config.AuditSubmitTimeout),
			Overflow:      ledger.OverflowPolicy(config.VConfig.GetString(config.AuditOverflow)),
		}
		if opts.Metrics != nil {
			wopts.Observer = opts.Metrics
		}
		opts.Audit = ledger.NewWriter(store, wopts)
	}

	if opts.Index == nil {
		if addr := config.VConfig.GetString(config.IndexRedisAddr); addr != "" {
			opts.Index = index.New(addr)
		}
	}

	if opts.Workers == 0 {
		opts.Workers = config.VConfig.GetInt(config.MaxWorkers)
	}

	return nil
}

func riskFromConfig() (*risk.Evaluator, error) {
	path := config.VConfig.GetString(config.RiskModelPath)
	if path == "" {
		return risk.NewEvaluator(), nil
	}

	fallback := config.VConfig.GetBool(config.RiskModelFallback)
	evaluator, err := risk.NewModelEvaluator(path, fallback)
	if err != nil {
		if !fallback {
			return nil, err
		}
		logger.Warnf(agent, "init", "model artifact unavailable at %s, using heuristic scoring: %v", path, err)
		return risk.NewEvaluator(), nil
	}
	return evaluator, nil
}

// EvaluateLogin evaluates an authentication event and returns the decision.
func (e *DecisionEngineImpl) EvaluateLogin(ctx context.Context, in *model.InputContext) (*model.Response, error) {
	logger.Debug(agent, "EvaluateLogin", "Enter")
	defer logger.Debug(agent, "EvaluateLogin", "Exit")
	return e.instance.EvaluateLogin(ctx, in)
}

// ReloadPolicy atomically replaces the policy document.
func (e *DecisionEngineImpl) ReloadPolicy(doc *policy.Document) error {
	return e.instance.Policy().Reload(doc)
}

// PolicyVersion returns the active policy document version.
func (e *DecisionEngineImpl) PolicyVersion() string {
	return e.instance.Policy().Version()
}

// RiskMode reports the active risk scoring mode.
func (e *DecisionEngineImpl) RiskMode() string {
	return e.instance.RiskMode()
}

// Audit exposes the ledger writer.
func (e *DecisionEngineImpl) Audit() *ledger.Writer {
	return e.opts.Audit
}

// Shutdown drains the audit queue within the context deadline and closes
// the backing stores. The engine must not be used after Shutdown.
func (e *DecisionEngineImpl) Shutdown(ctx context.Context) error {
	logger.Info(agent, "Shutdown", "draining audit queue")

	err := e.opts.Audit.Shutdown(ctx)
	if cerr := e.store.Close(); err == nil {
		err = cerr
	}
	if e.ix != nil {
		if cerr := e.ix.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// defaultShutdownGrace bounds how long Shutdown waits when the caller has
// no deadline of its own.
const defaultShutdownGrace = 10 * time.Second

// ShutdownWithGrace is a convenience wrapper applying the default grace
// period when the caller's context carries no deadline.
func ShutdownWithGrace(eng DecisionEngine) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownGrace)
	defer cancel()
	return eng.Shutdown(ctx)
}
