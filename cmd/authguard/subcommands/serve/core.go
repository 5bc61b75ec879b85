//
//  Copyright © Trustline Inc. All rights reserved.
//

package serve

import (
	"context"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/trustline/authguard/cmd/authguard/common"
	"github.com/trustline/authguard/internal/logging"
	"github.com/trustline/authguard/pkg/core/options"
	"github.com/trustline/authguard/pkg/decisionpoint/generic"
	"github.com/trustline/authguard/pkg/metrics"
)

var logger = logging.GetLogger("authguard")

const agent string = "serve"

// Execute runs the serve command, starting a decision point server and
// gracefully shutting down on interrupt signals.
func Execute(ctx context.Context, cmd *cli.Command) error {
	port := cmd.Int("port")

	m := metrics.New(prometheus.DefaultRegisterer)
	eng, err := common.NewCliDecisionEngine(cmd, options.WithMetrics(m))
	if err != nil {
		return err
	}

	server, err := generic.CreateServer(eng, port)
	if err != nil {
		return err
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	logger.Info(agent, "shutdown", "Shutting down server...")

	if err := server.Stop(ctx); err != nil {
		return err
	}
	if err := eng.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info(agent, "shutdown", "Server exited gracefully.")
	return nil
}
