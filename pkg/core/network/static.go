//
//  Copyright © Trustline Inc. All rights reserved.
//

package network

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// StaticProvider serves network context from a JSON file, for deployments
// without a live graph service and for tests. The file maps IP addresses
// and device ids to context records; when both the IP and the device match
// an entry, the evidence is merged taking the worse of each signal.
//
// File shape:
//
//	{
//	  "ips": {"203.0.113.7": {"ip_shared_account_count": 12, "is_datacenter_ip": true}},
//	  "devices": {"dev-1": {"device_shared_account_count": 4}}
//	}
type StaticProvider struct {
	IPs     map[string]Context `json:"ips"`
	Devices map[string]Context `json:"devices"`
}

// LoadStaticProvider reads a static network context file.
func LoadStaticProvider(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read network context")
	}

	p := &StaticProvider{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, errors.Wrap(err, "parse network context")
	}
	return p, nil
}

// Lookup implements Provider.
func (p *StaticProvider) Lookup(_ context.Context, ipAddress, deviceID string) (*Context, error) {
	ipCtx, ipOK := p.IPs[ipAddress]
	devCtx, devOK := p.Devices[deviceID]

	switch {
	case !ipOK && !devOK:
		return nil, nil
	case ipOK && !devOK:
		return &ipCtx, nil
	case devOK && !ipOK:
		return &devCtx, nil
	}

	merged := Context{
		IPSharedAccountCount:     maxInt(ipCtx.IPSharedAccountCount, devCtx.IPSharedAccountCount),
		DeviceSharedAccountCount: maxInt(ipCtx.DeviceSharedAccountCount, devCtx.DeviceSharedAccountCount),
		IsDatacenterIP:           ipCtx.IsDatacenterIP || devCtx.IsDatacenterIP,
		IsKnownProxyRange:        ipCtx.IsKnownProxyRange || devCtx.IsKnownProxyRange,
		IsInRiskyCluster:         ipCtx.IsInRiskyCluster || devCtx.IsInRiskyCluster,
		ClusterFraudRate:         maxFloat(ipCtx.ClusterFraudRate, devCtx.ClusterFraudRate),
	}
	return &merged, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
