package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <id>",
		Short: "Re-attempt rollback of a transaction from the durable log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("rollback: %s is not a transaction id", args[0])
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.manager.Rollback(context.Background(), id); err != nil {
				return fmt.Errorf("rollback: %w", err)
			}
			fmt.Printf("transaction %d rollback complete\n", id)
			return nil
		},
	}
}
