package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var limit int
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			views, err := a.manager.List(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}

			if status != "" {
				filtered := views[:0]
				for _, v := range views {
					if string(v.Transaction.Status) == status {
						filtered = append(filtered, v)
					}
				}
				views = filtered
			}

			out, err := json.MarshalIndent(views, "", "  ")
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of transactions to return")
	cmd.Flags().StringVar(&status, "status", "", "filter by transaction status")
	return cmd
}
