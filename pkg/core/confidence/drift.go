//
//  Copyright © Trustline Inc. All rights reserved.
//

package confidence

import (
	"sync"
)

// minEscalationRate is the floor below which the escalation rate over the
// window suggests the calibrator has drifted optimistic.
const minEscalationRate = 0.15

// Monitor tracks the escalation rate over a rolling window of decisions.
// When the rate over a full window drops below the floor it raises an
// advisory recalibration flag; the caller decides what to do with it.
type Monitor struct {
	mu     sync.Mutex
	window []bool
	next   int
	filled bool
}

// NewMonitor creates a drift monitor over the last n decisions.
func NewMonitor(n int) *Monitor {
	if n <= 0 {
		n = 100
	}
	return &Monitor{window: make([]bool, n)}
}

// Observe records whether a decision escalated.
func (m *Monitor) Observe(escalated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window[m.next] = escalated
	m.next++
	if m.next == len(m.window) {
		m.next = 0
		m.filled = true
	}
}

// EscalationRate returns the escalation rate over the observed window.
func (m *Monitor) EscalationRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rateLocked()
}

func (m *Monitor) rateLocked() float64 {
	n := len(m.window)
	if !m.filled {
		n = m.next
	}
	if n == 0 {
		return 0
	}

	count := 0
	for i := 0; i < n; i++ {
		if m.window[i] {
			count++
		}
	}
	return float64(count) / float64(n)
}

// RecalibrationNeeded reports the advisory flag: a full window whose
// escalation rate has fallen below the floor.
func (m *Monitor) RecalibrationNeeded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filled && m.rateLocked() < minEscalationRate
}
