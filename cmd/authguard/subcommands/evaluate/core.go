//
//  Copyright © Trustline Inc. All rights reserved.
//

package evaluate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/trustline/authguard/cmd/authguard/common"
)

// Execute runs one evaluation from the command line: reads an InputContext
// from a file or stdin, runs it through the decision flow, and prints the
// response as JSON.
func Execute(ctx context.Context, cmd *cli.Command) error {
	in, err := common.ReadInputContext(cmd.String("input"))
	if err != nil {
		return err
	}

	eng, err := common.NewCliDecisionEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Shutdown(ctx) //nolint:errcheck

	resp, err := eng.EvaluateLogin(ctx, in)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
