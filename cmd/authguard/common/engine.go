//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package common holds helpers shared by the authguard subcommands.
package common

import (
	"encoding/json"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/trustline/authguard/pkg/core"
	"github.com/trustline/authguard/pkg/core/model"
	"github.com/trustline/authguard/pkg/core/network"
	"github.com/trustline/authguard/pkg/core/options"
	"github.com/trustline/authguard/pkg/core/policy"
	"github.com/trustline/authguard/pkg/core/risk"
)

// NewCliDecisionEngine creates a DecisionEngine configured from CLI flags.
// Flags override whatever the configuration file and environment resolved;
// anything not flagged falls back to the config defaults.
func NewCliDecisionEngine(cmd *cli.Command, extra ...options.EngineOptionsFunc) (core.DecisionEngine, error) {
	var opts []options.EngineOptionsFunc

	if p := cmd.String("model"); p != "" {
		evaluator, err := risk.NewModelEvaluator(p, true)
		if err != nil {
			return nil, err
		}
		opts = append(opts, options.WithRiskEvaluator(evaluator))
	}

	if p := cmd.String("policy"); p != "" {
		doc, err := policy.LoadDocument(p)
		if err != nil {
			return nil, err
		}
		opts = append(opts, options.WithPolicyDocument(doc))
	}

	if p := cmd.String("network"); p != "" {
		provider, err := network.LoadStaticProvider(p)
		if err != nil {
			return nil, err
		}
		opts = append(opts, options.WithNetworkProvider(provider))
	}

	opts = append(opts, extra...)
	return core.NewDecisionEngine(opts...)
}

// ReadInputContext loads an InputContext from the named JSON file, or from
// stdin when the name is "-".
func ReadInputContext(name string) (*model.InputContext, error) {
	var f *os.File
	if name == "-" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(name) // #nosec G304
		if err != nil {
			return nil, err
		}
		defer f.Close()
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var in model.InputContext
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	return &in, nil
}
