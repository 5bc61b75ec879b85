//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package decisionpoint provides interfaces and implementations for
// decision point servers.
//
// A decision point exposes the decision engine as a network service that
// authentication frontends call to evaluate login attempts.
//
// # Usage
//
// Create and start a decision point server:
//
//	eng, _ := core.NewDecisionEngine()
//	server, _ := generic.CreateServer(eng, 8080)
//	defer server.Stop(ctx)
package decisionpoint

import "context"

// Server is the interface for decision point servers that can be
// gracefully stopped.
//
// Implementations must ensure that [Stop] completes any in-flight requests
// before returning.
type Server interface {
	// Stop gracefully shuts down the server, waiting for active requests
	// to complete or until the context is cancelled.
	Stop(context.Context) error
}
