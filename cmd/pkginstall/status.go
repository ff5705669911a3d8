package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a transaction and its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("status: %s is not a transaction id", args[0])
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			view, err := a.manager.Status(context.Background(), id)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			out, err := json.MarshalIndent(view, "", "  ")
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
