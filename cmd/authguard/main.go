//
//  Copyright © Trustline Inc. All rights reserved.
//

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/trustline/authguard/cmd/authguard/subcommands/evaluate"
	"github.com/trustline/authguard/cmd/authguard/subcommands/serve"
	"github.com/trustline/authguard/cmd/authguard/subcommands/verify"
	"github.com/trustline/authguard/cmd/authguard/version"
)

// engineFlags are shared by every subcommand that constructs a decision
// engine. Unset flags fall back to configuration and environment.
func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "model",
			Aliases: []string{"m"},
			Usage:   "Load the risk model artifact from `DIR`. Falls back to heuristic scoring when unset.",
		},
		&cli.StringFlag{
			Name:    "policy",
			Aliases: []string{"p"},
			Usage:   "Load the policy document from `FILE`. Uses the built-in document when unset.",
		},
		&cli.StringFlag{
			Name:  "network",
			Usage: "Load static network context from `FILE`.",
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "authguard",
		Usage:   "A CLI application for working with the Trustline AuthGuard decision engine",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Creates a decision-point service",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "The TCP port to serve on.",
						Value: 8080,
					},
				}, engineFlags()...),
				Action: serve.Execute,
			},
			{
				Name:  "evaluate",
				Usage: "Evaluates a single authentication event and prints the decision",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Load the input context from `FILE`, or use '-' for stdin",
						Value:   "-",
					},
				}, engineFlags()...),
				Action: evaluate.Execute,
			},
			{
				Name:  "verify",
				Usage: "Verifies the audit ledger's hash chains",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "The audit ledger directory.",
						Value:   "audit",
					},
					&cli.StringFlag{
						Name:  "partition",
						Usage: "Verify only the named partition (a UTC date, e.g. 2026-08-26).",
					},
				},
				Action: verify.Execute,
			},
			{
				Name:  "version",
				Usage: "Prints the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Println(version.GetVersion())
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
