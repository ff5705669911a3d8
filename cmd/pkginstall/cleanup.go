package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var olderThan int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete terminal transactions older than --older-than days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.manager.GC(context.Background(), olderThan)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			fmt.Printf("removed %d transaction(s)\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThan, "older-than", 30, "delete terminal transactions older than this many days")
	return cmd
}
