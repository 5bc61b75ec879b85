//
//  Copyright © Trustline Inc. All rights reserved.
//

package verify

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/trustline/authguard/pkg/ledger"
)

func report(store *ledger.Store, partition string) error {
	if err := store.VerifyPartition(partition); err != nil {
		return err
	}
	_, count, err := store.Head(partition)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d entries verified\n", partition, count)
	return nil
}

// Execute walks the audit ledger and verifies every hash chain. It prints
// one line per partition and fails with the first integrity error found.
func Execute(ctx context.Context, cmd *cli.Command) error {
	store, err := ledger.NewStore(cmd.String("dir"))
	if err != nil {
		return err
	}

	if p := cmd.String("partition"); p != "" {
		return report(store, p)
	}

	partitions, err := store.Partitions()
	if err != nil {
		return err
	}
	if len(partitions) == 0 {
		fmt.Println("ledger is empty")
		return nil
	}

	for _, p := range partitions {
		if err := report(store, p); err != nil {
			return err
		}
	}
	return nil
}
