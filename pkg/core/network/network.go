//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package network aggregates shared-infrastructure evidence for a login
// over a user/device/IP graph snapshot.
//
// The evaluator is evidence-only: it weighs signals into a score in [0,1]
// and emits one tag per active signal. It never concludes fraud; that
// judgment belongs to the calibrator and the policy engine downstream.
package network

import (
	"context"

	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/model"
)

// Context is the read-only network evidence snapshot for one login,
// produced by a [Provider].
type Context struct {
	IPSharedAccountCount     int     `json:"ip_shared_account_count"`
	DeviceSharedAccountCount int     `json:"device_shared_account_count"`
	IsDatacenterIP           bool    `json:"is_datacenter_ip"`
	IsKnownProxyRange        bool    `json:"is_known_proxy_range"`
	IsInRiskyCluster         bool    `json:"is_in_risky_cluster"`
	ClusterFraudRate         float64 `json:"cluster_fraud_rate"`
}

// Provider resolves {ip_address, device_id} to a network evidence snapshot.
// A nil snapshot means no evidence is available for the pair.
type Provider interface {
	Lookup(ctx context.Context, ipAddress, deviceID string) (*Context, error)
}

// Evidence tags.
const (
	TagIPShared     = "ip_shared_across_accounts"
	TagDeviceShared = "device_shared_across_accounts"
	TagDatacenterIP = "datacenter_ip"
	TagProxyRange   = "known_proxy_range"
	TagRiskyCluster = "risky_cluster_membership"
	TagVPN          = "vpn_or_proxy_detected"
	TagTor          = "tor_exit_node_detected"
)

// Signal weights and activation thresholds.
const (
	ipSharedThreshold     = 5
	deviceSharedThreshold = 3

	weightIPShared     = 0.30
	weightDeviceShared = 0.30
	weightDatacenterIP = 0.20
	weightProxyRange   = 0.15
	weightRiskyCluster = 0.25
	weightVPN          = 0.10
	weightTor          = 0.30
)

// Evaluator aggregates network evidence. It is stateless and safe for
// concurrent use.
type Evaluator struct {
	provider Provider
}

// NewEvaluator creates a network evaluator. The provider may be nil, in
// which case only the session's own VPN/Tor flags contribute.
func NewEvaluator(provider Provider) *Evaluator {
	return &Evaluator{provider: provider}
}

// Evaluate produces a NetworkEvaluation for the session and device.
func (e *Evaluator) Evaluate(ctx context.Context, session *model.Session, device *model.Device) (model.NetworkEvaluation, error) {
	var snapshot *Context
	if e.provider != nil {
		var err error
		snapshot, err = e.provider.Lookup(ctx, session.IPAddress, device.DeviceID)
		if err != nil {
			return model.NetworkEvaluation{}, common.WrapError(common.CodeAgent, "network context lookup failed", err)
		}
	}

	var score float64
	var evidence []string

	add := func(weight float64, tag string) {
		score += weight
		evidence = append(evidence, tag)
	}

	if snapshot != nil {
		if snapshot.IPSharedAccountCount >= ipSharedThreshold {
			add(weightIPShared, TagIPShared)
		}
		if snapshot.DeviceSharedAccountCount >= deviceSharedThreshold {
			add(weightDeviceShared, TagDeviceShared)
		}
		if snapshot.IsDatacenterIP {
			add(weightDatacenterIP, TagDatacenterIP)
		}
		if snapshot.IsKnownProxyRange {
			add(weightProxyRange, TagProxyRange)
		}
		if snapshot.IsInRiskyCluster {
			// Cluster membership contributes in proportion to the observed
			// fraud rate of the cluster.
			add(weightRiskyCluster*common.Clamp01(snapshot.ClusterFraudRate), TagRiskyCluster)
		}
	}

	if session.IsVPN {
		add(weightVPN, TagVPN)
	}
	if session.IsTor {
		add(weightTor, TagTor)
	}

	return model.NetworkEvaluation{
		NetworkRisk: common.Clamp01(score),
		Evidence:    evidence,
	}, nil
}
