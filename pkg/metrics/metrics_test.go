//
//  Copyright © Trustline Inc. All rights reserved.
//

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/trustline/authguard/pkg/ledger"
)

// The metrics struct stands in for the writer's observer.
var _ ledger.Observer = (*Metrics)(nil)

func TestDecisionMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveDecision("ALLOW", 5*time.Millisecond)
	m.ObserveDecision("ALLOW", 7*time.Millisecond)
	m.ObserveDecision("ESCALATE", 3*time.Millisecond)
	m.AgentFailure("network")
	m.ObserveEscalationRate(0.25)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("ALLOW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("ESCALATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentFailures.WithLabelValues("network")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.EscalationRate))
}

func TestAuditObserverMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.QueueDepth(42)
	m.SyncFallback()
	m.SyncFallback()
	m.Dropped()
	m.WriteFailed()

	assert.Equal(t, 42.0, testutil.ToFloat64(m.AuditQueueDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuditSyncWrites))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteErrors))
}
